package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/rentaldesk/internal/api"
	"github.com/yourorg/rentaldesk/internal/dashboard"
	"github.com/yourorg/rentaldesk/internal/directory"
	"github.com/yourorg/rentaldesk/internal/importer"
	"github.com/yourorg/rentaldesk/internal/lifecycle"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/internal/view"
	"github.com/yourorg/rentaldesk/pkg/types"
)

// Server exposes the dashboard core as a local JSON API plus /metrics.
type Server struct {
	dash   *dashboard.Dashboard
	logger *slog.Logger
	router *mux.Router
}

func New(dash *dashboard.Dashboard, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dash: dash, logger: logger, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/api/tab", s.handleSetTab).Methods(http.MethodPost)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/api/requests", s.handleRequests).Methods(http.MethodGet)
	r.HandleFunc("/api/requests", s.handleCreateRequest).Methods(http.MethodPost)
	r.HandleFunc("/api/requests/{id}", s.handleDeleteRequest).Methods(http.MethodDelete)
	r.HandleFunc("/api/requests/{id}/email/preview", s.handlePreview).Methods(http.MethodPost)

	r.HandleFunc("/api/draft", s.handleGetDraft).Methods(http.MethodGet)
	r.HandleFunc("/api/draft", s.handleEditDraft).Methods(http.MethodPatch)
	r.HandleFunc("/api/draft", s.handleCancelDraft).Methods(http.MethodDelete)
	r.HandleFunc("/api/draft/send", s.handleSendDraft).Methods(http.MethodPost)

	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/api/partners", s.handlePartners).Methods(http.MethodGet)
	r.HandleFunc("/api/partners/{id}", s.handleDeletePartner).Methods(http.MethodDelete)
	r.HandleFunc("/api/partners/upload", s.handleUploadPartners).Methods(http.MethodPost)

	r.HandleFunc("/api/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/api/ingest/status", s.handleIngestStatus).Methods(http.MethodGet)

	r.HandleFunc("/api/credentials", s.handleCredentialsStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/credentials", s.handleSaveCredentials).Methods(http.MethodPost)
	r.HandleFunc("/api/export/{kind}", s.handleExport).Methods(http.MethodGet)
}

type storeState struct {
	Loaded    bool       `json:"loaded"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func toStoreState(st store.Status) storeState {
	out := storeState{Loaded: st.Loaded}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		out.UpdatedAt = &t
	}
	return out
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"session": map[string]any{
			"state":         s.dash.Gate.State().String(),
			"auth_required": s.dash.Gate.AuthRequired(),
		},
		"tab": s.dash.Router.Active(),
		"stores": map[string]storeState{
			view.StoreRequests: toStoreState(s.dash.Requests.Status()),
			view.StoreHistory:  toStoreState(s.dash.History.Status()),
			view.StoreStats:    toStoreState(s.dash.Stats.Status()),
			view.StorePartners: toStoreState(s.dash.Partners.Status()),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.dash.Gate.Login(r.Context(), in.Password); err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.dash.Gate.State().String()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.dash.Gate.Logout()
	writeJSON(w, http.StatusOK, map[string]string{"state": s.dash.Gate.State().String()})
}

func (s *Server) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Tab view.Tab `json:"tab"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.dash.Router.SetActive(in.Tab); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Warm the newly selected tab right away.
	s.dash.Scheduler.Tick(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"tab": in.Tab})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	s.dash.Scheduler.Tick(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, loaded := s.dash.Requests.Get()
	ville := r.URL.Query().Get("ville")
	date := r.URL.Query().Get("date")
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":   loaded,
		"requests": filterRequests(reqs, ville, date),
	})
}

// filterRequests narrows the in-memory collection by city substring and a
// date falling inside the rental period. ISO dates compare lexically.
func filterRequests(reqs []types.Request, ville, date string) []types.Request {
	ville = strings.ToLower(strings.TrimSpace(ville))
	out := make([]types.Request, 0, len(reqs))
	for _, req := range reqs {
		if ville != "" && !strings.Contains(strings.ToLower(req.Ville), ville) {
			continue
		}
		if date != "" && (req.DateDebut > date || req.DateFin < date) {
			continue
		}
		out = append(out, req)
	}
	return out
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	var in types.NewRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	created, err := s.dash.Lifecycle.CreateRequest(r.Context(), in)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	confirmed := r.URL.Query().Get("confirm") == "true"
	if err := s.dash.Lifecycle.DeleteRequest(r.Context(), id, confirmed); err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	draft, err := s.dash.Lifecycle.PreviewEmail(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	draft := s.dash.Lifecycle.Draft()
	if draft == nil {
		writeError(w, http.StatusNotFound, "no draft open")
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Subject    *string `json:"subject"`
		Body       *string `json:"body"`
		Recipients *string `json:"recipients"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	draft, err := s.dash.Lifecycle.EditDraft(lifecycle.DraftPatch{
		Subject:    in.Subject,
		Body:       in.Body,
		Recipients: in.Recipients,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleCancelDraft(w http.ResponseWriter, r *http.Request) {
	s.dash.Lifecycle.CancelDraft()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleSendDraft(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	if err := s.dash.Lifecycle.SendDraft(r.Context()); err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, loaded := s.dash.History.Get()
	writeJSON(w, http.StatusOK, map[string]any{"loaded": loaded, "history": entries})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, loaded := s.dash.Stats.Get()
	writeJSON(w, http.StatusOK, map[string]any{"loaded": loaded, "stats": stats})
}

func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	partners, loaded := s.dash.Partners.Get()
	q := r.URL.Query()
	spec := directory.Spec{
		Text:    q.Get("text"),
		City:    q.Get("ville"),
		Country: q.Get("pays"),
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":   loaded,
		"partners": directory.Apply(partners, spec),
		"facets": map[string]any{
			"cities":    directory.CityFacets(partners),
			"countries": directory.CountryFacets(partners),
		},
	})
}

func (s *Server) handleDeletePartner(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "deletion requires confirmation")
		return
	}
	if err := s.dash.Client.DeletePartner(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.dash.Partners.Mutate(func(ps []types.Partner) []types.Partner {
		// allocate: snapshots handed out by Get still alias the old array
		out := make([]types.Partner, 0, len(ps))
		for _, p := range ps {
			if p.ID != id {
				out = append(out, p)
			}
		}
		return out
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUploadPartners(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	// Validate locally before shipping the sheet to the backend.
	parsed, err := importer.Parse(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, err := s.dash.Client.UploadPartners(r.Context(), header.Filename, file)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	_ = s.dash.Partners.Refresh(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"parsed":   len(parsed.Partners),
		"warnings": parsed.Warnings,
		"result":   result,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	if err := s.dash.TriggerIngestion(r.Context()); err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "ingestion started"})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	status, loaded := s.dash.Ingestion.Get()
	writeJSON(w, http.StatusOK, map[string]any{"loaded": loaded, "status": status})
}

func (s *Server) handleCredentialsStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	status, err := s.dash.Client.CredentialsStatus(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	var in types.Credentials
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.dash.Client.SaveCredentials(r.Context(), in); err != nil {
		s.respondErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleExport streams the backend CSV through, so the browser never needs
// the bearer token.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireOpen(w) {
		return
	}
	kind := mux.Vars(r)["kind"]
	switch kind {
	case "demandes", "stats", "historique":
	default:
		writeError(w, http.StatusBadRequest, "unknown export kind")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", kind))
	if err := s.dash.Client.Download(r.Context(), s.dash.Client.ExportURL(kind), w); err != nil {
		s.logger.Error("export failed", "kind", kind, "err", err)
	}
}

// requireOpen rejects actions while the session gate is not Open.
func (s *Server) requireOpen(w http.ResponseWriter) bool {
	if s.dash.Gate.Open() {
		return true
	}
	writeError(w, http.StatusUnauthorized, "authentication required")
	return false
}

// respondErr maps core errors onto HTTP statuses, keeping server-provided
// validation messages verbatim.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	switch {
	case errors.Is(err, api.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, apiErr.Message)
	case errors.Is(err, lifecycle.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrNotPreviewable),
		errors.Is(err, lifecycle.ErrNoDraft),
		errors.Is(err, lifecycle.ErrEmptyBody),
		errors.Is(err, lifecycle.ErrNoRecipients),
		errors.Is(err, lifecycle.ErrNotConfirmed),
		errors.Is(err, lifecycle.ErrMissingName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("backend call failed", "err", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
