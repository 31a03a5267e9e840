// Package dashboard wires the client-side core together: transport, session
// gate, entity stores, view router, sync scheduler and lifecycle controller.
package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yourorg/rentaldesk/internal/api"
	"github.com/yourorg/rentaldesk/internal/config"
	"github.com/yourorg/rentaldesk/internal/lifecycle"
	"github.com/yourorg/rentaldesk/internal/session"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/internal/syncer"
	"github.com/yourorg/rentaldesk/internal/view"
	"github.com/yourorg/rentaldesk/pkg/types"
)

type Dashboard struct {
	Client    *api.Client
	Gate      *session.Gate
	Router    *view.Router
	Requests  *store.Store[[]types.Request]
	History   *store.Store[[]types.HistoryEntry]
	Stats     *store.Store[*types.Statistics]
	Partners  *store.Store[[]types.Partner]
	Ingestion *store.Store[*types.FetchStatus]
	Lifecycle *lifecycle.Controller
	Scheduler *syncer.Scheduler
}

// New builds the full core against one backend. The cache may be nil for an
// ephemeral session.
func New(cfg *config.Config, cache session.Cache, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	client := &api.Client{
		BaseURL:    cfg.Backend.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Timeout()},
		Logger:     logger,
	}
	gate := session.NewGate(client, cache, logger)
	client.Auth = gate

	d := &Dashboard{
		Client: client,
		Gate:   gate,
		Router: view.NewRouter(),
	}
	d.Requests = store.New(view.StoreRequests, client.ListRequests)
	d.History = store.New(view.StoreHistory, client.ListHistory)
	d.Stats = store.New(view.StoreStats, client.Stats)
	d.Partners = store.New(view.StorePartners, client.ListPartners)
	d.Ingestion = store.New("ingestion", client.FetchStatus)
	d.Lifecycle = lifecycle.New(client, d.Requests, logger)

	d.Scheduler = syncer.New(gate, d.Router, syncer.NewTargets(d.Requests, d.History, d.Stats, d.Partners))
	d.Scheduler.Interval = cfg.PollInterval()
	d.Scheduler.Retry = cfg.RetryDelay()
	d.Scheduler.Logger = logger
	return d
}

// TriggerIngestion starts a backend mailbox scan and refreshes the ingestion
// summary plus the Requests store.
func (d *Dashboard) TriggerIngestion(ctx context.Context) error {
	if err := d.Client.TriggerIngestion(ctx); err != nil {
		return err
	}
	_ = d.Ingestion.Refresh(ctx)
	return d.Requests.Refresh(ctx)
}
