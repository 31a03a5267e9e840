package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"log/slog"

	"github.com/spf13/cobra"

	"github.com/yourorg/rentaldesk/internal/config"
	"github.com/yourorg/rentaldesk/internal/dashboard"
	"github.com/yourorg/rentaldesk/internal/directory"
	"github.com/yourorg/rentaldesk/internal/importer"
	"github.com/yourorg/rentaldesk/internal/lifecycle"
	"github.com/yourorg/rentaldesk/internal/session"
	"github.com/yourorg/rentaldesk/internal/web"
	"github.com/yourorg/rentaldesk/pkg/types"
)

const defaultConfigContent = `backend:
  base_url: "http://127.0.0.1:5001"
  timeout_seconds: 30

sync:
  poll_interval_seconds: 300
  retry_delay_ms: 2500

cache:
  dir: ""

server:
  host: "127.0.0.1"
  port: 4800

log:
  level: "info"
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "rentaldesk",
		Short: "Operator console for the vehicle-rental request backend",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")

	root.AddCommand(newInitCmd())
	root.AddCommand(newLoginCmd(&cfgPath))
	root.AddCommand(newLogoutCmd(&cfgPath))
	root.AddCommand(newRequestsCmd(&cfgPath))
	root.AddCommand(newEmailCmd(&cfgPath))
	root.AddCommand(newHistoryCmd(&cfgPath))
	root.AddCommand(newStatsCmd(&cfgPath))
	root.AddCommand(newPartnersCmd(&cfgPath))
	root.AddCommand(newIngestCmd(&cfgPath))
	root.AddCommand(newStatusCmd(&cfgPath))
	root.AddCommand(newCredentialsCmd(&cfgPath))
	root.AddCommand(newExportCmd(&cfgPath))
	root.AddCommand(newServeCmd(&cfgPath))

	return root
}

// app bundles everything a command needs against one backend.
type app struct {
	cfg   *config.Config
	cache session.Cache
	dash  *dashboard.Dashboard
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	cacheDir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	var cache session.Cache
	if sq, err := session.NewSQLiteCache(filepath.Join(cacheDir, "rentaldesk.db")); err == nil {
		cache = sq
	} else {
		logger.Warn("session cache unavailable, using in-memory", "err", err)
		cache = session.NewMemoryCache()
	}
	return &app{cfg: cfg, cache: cache, dash: dashboard.New(cfg, cache, logger)}, nil
}

func (a *app) Close() {
	_ = a.cache.Close()
}

// resolveOpen resolves the gate and fails when a login is still needed.
func (a *app) resolveOpen(ctx context.Context) error {
	a.dash.Gate.Resolve(ctx)
	if !a.dash.Gate.Open() {
		return errors.New("authentication required: run 'rentaldesk login'")
	}
	return nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.rentaldesk directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".rentaldesk")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			cache, err := session.NewSQLiteCache(filepath.Join(baseDir, "rentaldesk.db"))
			if err != nil {
				return err
			}
			defer cache.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "session cache ready")
			return nil
		},
	}
}

func newLoginCmd(cfgPath *string) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			a.dash.Gate.Resolve(ctx)
			if !a.dash.Gate.AuthRequired() && a.dash.Gate.Open() {
				fmt.Fprintln(cmd.OutOrStdout(), "backend does not require authentication")
				return nil
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "password: ")
				reader := bufio.NewReader(cmd.InOrStdin())
				line, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				password = strings.TrimSpace(line)
			}
			if err := a.dash.Gate.Login(ctx, password); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged in")
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "administrator password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			a.dash.Gate.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newRequestsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "requests", Short: "Manage rental requests"}
	cmd.AddCommand(newRequestsListCmd(cfgPath))
	cmd.AddCommand(newRequestsCreateCmd(cfgPath))
	cmd.AddCommand(newRequestsDeleteCmd(cfgPath))
	return cmd
}

func newRequestsListCmd(cfgPath *string) *cobra.Command {
	var ville, date string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rental requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Requests.Refresh(ctx); err != nil {
				return err
			}
			reqs, _ := a.dash.Requests.Get()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCITY\tVEHICLE\tPERIOD\tSTATUS\tPARTNERS")
			for _, r := range reqs {
				if ville != "" && !strings.Contains(strings.ToLower(r.Ville), strings.ToLower(ville)) {
					continue
				}
				// ISO dates compare lexically
				if date != "" && (r.DateDebut > date || r.DateFin < date) {
					continue
				}
				fmt.Fprintf(w, "%d\t%s %s\t%s\t%s\t%s → %s\t%s\t%d\n",
					r.ID, r.Prenom, r.Nom, r.Ville, r.TypeVehicule, r.DateDebut, r.DateFin, r.Statut, r.NbSousTraitants)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&ville, "ville", "", "filter by city substring")
	cmd.Flags().StringVar(&date, "date", "", "keep requests whose rental period covers this date (YYYY-MM-DD)")
	return cmd
}

func newRequestsCreateCmd(cfgPath *string) *cobra.Command {
	var in types.NewRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a rental request manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			created, err := a.dash.Lifecycle.CreateRequest(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created request %d\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Nom, "nom", "", "last name")
	cmd.Flags().StringVar(&in.Prenom, "prenom", "", "first name")
	cmd.Flags().StringVar(&in.Telephone, "telephone", "", "phone number")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Ville, "ville", "", "city")
	cmd.Flags().StringVar(&in.Pays, "pays", "", "country")
	cmd.Flags().StringVar(&in.DateDebut, "date-debut", "", "rental start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.DateFin, "date-fin", "", "rental end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.TypeVehicule, "vehicule", "", "vehicle type")
	cmd.Flags().IntVar(&in.NbPersonnes, "personnes", 0, "group size")
	cmd.Flags().StringVar(&in.InfosLibres, "infos", "", "free-form notes")
	_ = cmd.MarkFlagRequired("nom")
	_ = cmd.MarkFlagRequired("prenom")
	return cmd
}

func newRequestsDeleteCmd(cfgPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rental request (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if !yes {
				return lifecycle.ErrNotConfirmed
			}
			if err := a.dash.Lifecycle.DeleteRequest(ctx, id, yes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted request %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func newEmailCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "email", Short: "Preview and send partner emails"}
	cmd.AddCommand(newEmailPreviewCmd(cfgPath))
	cmd.AddCommand(newEmailSendCmd(cfgPath))
	return cmd
}

func newEmailPreviewCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <request-id>",
		Short: "Show the suggested email for a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Requests.Refresh(ctx); err != nil {
				return err
			}
			draft, err := a.dash.Lifecycle.PreviewEmail(ctx, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Subject: %s\n", draft.Subject)
			fmt.Fprintf(out, "To: %s\n", strings.Join(draft.Recipients, ", "))
			fmt.Fprintf(out, "Lang: %s  City: %s\n\n", draft.Lang, draft.Ville)
			fmt.Fprintln(out, draft.Body)
			return nil
		},
	}
}

func newEmailSendCmd(cfgPath *string) *cobra.Command {
	var subject, body, to string
	cmd := &cobra.Command{
		Use:   "send <request-id>",
		Short: "Send the partner email, validating the request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Requests.Refresh(ctx); err != nil {
				return err
			}
			if _, err := a.dash.Lifecycle.PreviewEmail(ctx, id); err != nil {
				return err
			}
			patch := lifecycle.DraftPatch{}
			if cmd.Flags().Changed("subject") {
				patch.Subject = &subject
			}
			if cmd.Flags().Changed("body") {
				patch.Body = &body
			}
			if cmd.Flags().Changed("to") {
				patch.Recipients = &to
			}
			if _, err := a.dash.Lifecycle.EditDraft(patch); err != nil {
				return err
			}
			if err := a.dash.Lifecycle.SendDraft(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "email sent, request %d validated\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "override the suggested subject")
	cmd.Flags().StringVar(&body, "body", "", "override the suggested body")
	cmd.Flags().StringVar(&to, "to", "", "comma-separated recipients, overrides the suggestion")
	return cmd
}

func newHistoryCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List past validations and deletions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.History.Refresh(ctx); err != nil {
				return err
			}
			entries, _ := a.dash.History.Get()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tACTION\tNAME\tCITY\tVEHICLE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%s\n", e.DateAction, e.Action, e.Prenom, e.Nom, e.Ville, e.TypeVehicule)
			}
			return w.Flush()
		},
	}
}

func newStatsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Stats.Refresh(ctx); err != nil {
				return err
			}
			stats, _ := a.dash.Stats.Get()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total: %d  validated: %d  pending: %d  rate: %.1f%%\n",
				stats.TotalDemandes, stats.DemandesValidees, stats.DemandesEnAttente, stats.TauxValidation)
			printBuckets(out, "by city", stats.StatsVille)
			printBuckets(out, "by vehicle", stats.StatsVehicule)
			printBuckets(out, "by month", stats.StatsMois)
			return nil
		},
	}
}

func printBuckets(out io.Writer, title string, buckets []types.StatBucket) {
	if len(buckets) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, b := range buckets {
		fmt.Fprintf(out, "  %-24s %d\n", b.Label, b.Count)
	}
}

func newPartnersCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{Use: "partners", Short: "Manage the partner directory"}
	cmd.AddCommand(newPartnersListCmd(cfgPath))
	cmd.AddCommand(newPartnersDeleteCmd(cfgPath))
	cmd.AddCommand(newPartnersImportCmd(cfgPath))
	return cmd
}

func newPartnersListCmd(cfgPath *string) *cobra.Command {
	var text, ville, pays string
	var facets bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List partners, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Partners.Refresh(ctx); err != nil {
				return err
			}
			partners, _ := a.dash.Partners.Get()
			filtered := directory.Apply(partners, directory.Spec{Text: text, City: ville, Country: pays})
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCITY\tCOUNTRY\tEMAIL")
			for _, p := range filtered {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.DisplayName(), p.Ville, p.Pays, p.Email)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if facets {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "\ncities:")
				for _, f := range directory.CityFacets(partners) {
					fmt.Fprintf(out, "  %-24s %d\n", f.Value, f.Count)
				}
				fmt.Fprintln(out, "countries:")
				for _, f := range directory.CountryFacets(partners) {
					fmt.Fprintf(out, "  %-24s %d\n", f.Value, f.Count)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "free-text filter on name or email")
	cmd.Flags().StringVar(&ville, "ville", "", "exact city filter")
	cmd.Flags().StringVar(&pays, "pays", "", "exact country filter")
	cmd.Flags().BoolVar(&facets, "facets", false, "print city/country counts over the full directory")
	return cmd
}

func newPartnersDeleteCmd(cfgPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a partner (irreversible)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if !yes {
				return errors.New("deletion requires --yes")
			}
			if err := a.dash.Client.DeletePartner(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted partner %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func newPartnersImportCmd(cfgPath *string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.xls>",
		Short: "Validate and bulk-import a partner spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := importer.Parse(f, filepath.Base(path))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "parsed %d partners\n", len(parsed.Partners))
			for _, warn := range parsed.Warnings {
				fmt.Fprintln(out, "warning:", warn)
			}
			if dryRun {
				return nil
			}

			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if _, err := f.Seek(0, 0); err != nil {
				return err
			}
			result, err := a.dash.Client.UploadPartners(ctx, filepath.Base(path), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "imported %d, skipped %d\n", result.Inserted, result.Skipped)
			for _, e := range result.Errors {
				fmt.Fprintln(out, "server:", e)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate locally without uploading")
	return cmd
}

func newIngestCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Trigger backend mailbox ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.TriggerIngestion(ctx); err != nil {
				return err
			}
			if status, ok := a.dash.Ingestion.Get(); ok && status != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "last run: mode=%s inserted=%d at %s\n",
					status.Mode, status.Inserted, status.Timestamp)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "ingestion started")
			}
			return nil
		},
	}
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ingestion and credentials status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if status, err := a.dash.Client.FetchStatus(ctx); err == nil {
				fmt.Fprintf(out, "last ingestion: mode=%s inserted=%d at %s\n",
					status.Mode, status.Inserted, status.Timestamp)
			} else {
				fmt.Fprintln(out, "last ingestion: unavailable:", err)
			}
			if creds, err := a.dash.Client.CredentialsStatus(ctx); err == nil {
				if creds.AIConfigured {
					fmt.Fprintf(out, "AI assist: configured (%s)\n", creds.Model)
				} else {
					fmt.Fprintln(out, "AI assist: not configured")
				}
			} else {
				fmt.Fprintln(out, "AI assist: unavailable:", err)
			}
			return nil
		},
	}
}

func newCredentialsCmd(cfgPath *string) *cobra.Command {
	var creds types.Credentials
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Persist mailbox/API credentials server-side",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds == (types.Credentials{}) {
				return errors.New("nothing to save, pass at least one flag")
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			if err := a.dash.Client.SaveCredentials(ctx, creds); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&creds.EmailUser, "email-user", "", "mailbox account")
	cmd.Flags().StringVar(&creds.EmailPassword, "email-password", "", "mailbox password")
	cmd.Flags().StringVar(&creds.OpenAIKey, "openai-key", "", "AI-assist API key")
	cmd.Flags().StringVar(&creds.OpenAIModel, "openai-model", "", "AI-assist model")
	return cmd
}

func newExportCmd(cfgPath *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <demandes|stats|historique>",
		Short: "Download a CSV export or print its URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			switch kind {
			case "demandes", "stats", "historique":
			default:
				return fmt.Errorf("unknown export kind %q", kind)
			}
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.resolveOpen(ctx); err != nil {
				return err
			}
			url := a.dash.Client.ExportURL(kind)
			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := a.dash.Client.Download(ctx, url, f); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "saved", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the export to a file")
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server with background synchronization",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a.dash.Gate.Resolve(ctx)
			go a.dash.Scheduler.Run(ctx)

			if host == "" {
				host = a.cfg.Server.Host
			}
			if port == 0 {
				port = a.cfg.Server.Port
			}
			addr := fmt.Sprintf("%s:%d", host, port)
			srv := web.New(a.dash, slog.Default())
			fmt.Fprintf(cmd.OutOrStdout(), "rentaldesk dashboard on http://%s (gate: %s, tab: %s)\n",
				addr, a.dash.Gate.State(), a.dash.Router.Active())

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe(addr) }()
			select {
			case <-ctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "bind host (defaults to config)")
	cmd.Flags().IntVar(&port, "port", 0, "bind port (defaults to config)")
	return cmd
}
