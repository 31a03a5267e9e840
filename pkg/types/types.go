package types

// Request statuses as reported by the backend.
const (
	StatusPending   = "en_attente"
	StatusValidated = "validee"
)

// Request is one vehicle-rental inquiry harvested from the email intake
// pipeline. The client never mutates stored fields directly; status changes
// happen server-side through the lifecycle operations only.
type Request struct {
	ID              int64  `json:"id"`
	Nom             string `json:"nom"`
	Prenom          string `json:"prenom"`
	Telephone       string `json:"telephone"`
	Email           string `json:"email"`
	Ville           string `json:"ville"`
	Pays            string `json:"pays"`
	DateDebut       string `json:"date_debut"`
	DateFin         string `json:"date_fin"`
	DateVoyage      string `json:"date_voyage"`
	TypeVehicule    string `json:"type_vehicule"`
	NbPersonnes     int    `json:"nb_personnes"`
	InfosLibres     string `json:"infos_libres"`
	Statut          string `json:"statut"`
	JoursRestants   *int   `json:"jours_restants"`
	CorpsMail       string `json:"corps_mail"`
	NbSousTraitants int    `json:"nb_sous_traitants"`
}

// Pending reports whether the request still accepts lifecycle transitions.
func (r Request) Pending() bool {
	return r.Statut == StatusPending
}

// NewRequest carries the fields for explicit request creation from the
// dashboard.
type NewRequest struct {
	Nom          string `json:"nom"`
	Prenom       string `json:"prenom"`
	Telephone    string `json:"telephone,omitempty"`
	Email        string `json:"email,omitempty"`
	Ville        string `json:"ville,omitempty"`
	Pays         string `json:"pays,omitempty"`
	DateDebut    string `json:"date_debut,omitempty"`
	DateFin      string `json:"date_fin,omitempty"`
	TypeVehicule string `json:"type_vehicule,omitempty"`
	NbPersonnes  int    `json:"nb_personnes,omitempty"`
	InfosLibres  string `json:"infos_libres,omitempty"`
}

// HistoryEntry is an immutable record of a past validation or deletion.
type HistoryEntry struct {
	ID           int64  `json:"id"`
	DateAction   string `json:"date_action"`
	Action       string `json:"action"`
	Nom          string `json:"nom"`
	Prenom       string `json:"prenom"`
	Ville        string `json:"ville"`
	TypeVehicule string `json:"type_vehicule"`
	Statut       string `json:"statut"`
}

// StatBucket is one aggregate row (per city, vehicle type or month).
type StatBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Statistics is the server-computed aggregate snapshot. It is replaced
// wholesale on each refresh, never merged.
type Statistics struct {
	TotalDemandes     int          `json:"total_demandes"`
	DemandesValidees  int          `json:"demandes_validees"`
	DemandesEnAttente int          `json:"demandes_en_attente"`
	TauxValidation    float64      `json:"taux_validation"`
	StatsVille        []StatBucket `json:"stats_ville"`
	StatsVehicule     []StatBucket `json:"stats_vehicule"`
	StatsMois         []StatBucket `json:"stats_mois"`
}

// Partner is a sous-traitant eligible to receive validation emails.
type Partner struct {
	ID            int64  `json:"id"`
	Nom           string `json:"nom"`
	NomEntreprise string `json:"nom_entreprise,omitempty"`
	SiteInternet  string `json:"site_internet,omitempty"`
	Pays          string `json:"pays"`
	Ville         string `json:"ville"`
	Email         string `json:"email"`
	Telephone     string `json:"telephone,omitempty"`
}

// DisplayName prefers the company name when both are present.
func (p Partner) DisplayName() string {
	if p.NomEntreprise != "" {
		return p.NomEntreprise
	}
	return p.Nom
}

// EmailPreview is the backend's suggested outbound email for one request.
type EmailPreview struct {
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
	Ville      string   `json:"ville"`
	Lang       string   `json:"lang"`
}

// EmailDraft is the client-owned working copy of the outbound email. It is
// created from a preview, edited locally and discarded on cancel or send.
type EmailDraft struct {
	ID         string   `json:"id"`
	RequestID  int64    `json:"request_id"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
	Ville      string   `json:"ville"`
	Lang       string   `json:"lang"`
}

// FetchStatus summarises the last backend ingestion run.
type FetchStatus struct {
	Mode      string `json:"mode"`
	Inserted  int    `json:"inserted"`
	Timestamp string `json:"timestamp"`
}

// Credentials are the mailbox/API secrets persisted server-side.
type Credentials struct {
	EmailUser     string `json:"email_user,omitempty"`
	EmailPassword string `json:"email_password,omitempty"`
	OpenAIKey     string `json:"openai_api_key,omitempty"`
	OpenAIModel   string `json:"openai_model,omitempty"`
}

// CredentialsStatus reports whether an AI-assist key is configured.
type CredentialsStatus struct {
	AIConfigured bool   `json:"ai_configured"`
	Model        string `json:"model,omitempty"`
}

// Health is the startup probe answer.
type Health struct {
	Status       string `json:"status"`
	AuthRequired bool   `json:"auth_required"`
}

// UploadResult summarises a partner spreadsheet import.
type UploadResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
