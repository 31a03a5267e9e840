package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/rentaldesk/internal/api"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/pkg/types"
)

var (
	ErrNotFound       = errors.New("request not found")
	ErrNotPreviewable = errors.New("request is not pending, email cannot be previewed")
	ErrNoDraft        = errors.New("no draft open")
	ErrEmptyBody      = errors.New("email body is empty")
	ErrNoRecipients   = errors.New("at least one recipient is required")
	ErrNotConfirmed   = errors.New("deletion requires confirmation")
	ErrMissingName    = errors.New("first and last name are required")
)

// Controller executes the pending→validated and pending→deleted transitions,
// including the email preview/edit/send sub-workflow. It holds at most one
// open draft at a time.
type Controller struct {
	client   *api.Client
	requests *store.Store[[]types.Request]
	logger   *slog.Logger

	mu    sync.Mutex
	draft *types.EmailDraft
}

func New(client *api.Client, requests *store.Store[[]types.Request], logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{client: client, requests: requests, logger: logger}
}

// DraftPatch is a local edit to the open draft. Nil fields are untouched.
// Recipients is free text split on commas.
type DraftPatch struct {
	Subject    *string
	Body       *string
	Recipients *string
}

// PreviewEmail fetches the suggested email for a pending request and opens a
// draft. Non-pending requests are rejected locally with no state change.
func (c *Controller) PreviewEmail(ctx context.Context, id int64) (*types.EmailDraft, error) {
	req, ok := c.findRequest(id)
	if !ok {
		return nil, ErrNotFound
	}
	if !req.Pending() {
		return nil, ErrNotPreviewable
	}
	preview, err := c.client.PreviewEmail(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = &types.EmailDraft{
		ID:         uuid.NewString(),
		RequestID:  id,
		Subject:    preview.Subject,
		Body:       preview.Body,
		Recipients: dedupeRecipients(preview.Recipients),
		Ville:      preview.Ville,
		Lang:       preview.Lang,
	}
	return c.draftCopyLocked(), nil
}

// Draft returns a copy of the open draft, or nil.
func (c *Controller) Draft() *types.EmailDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftCopyLocked()
}

// EditDraft mutates the open draft locally. No network call.
func (c *Controller) EditDraft(patch DraftPatch) (*types.EmailDraft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return nil, ErrNoDraft
	}
	if patch.Subject != nil {
		c.draft.Subject = *patch.Subject
	}
	if patch.Body != nil {
		c.draft.Body = *patch.Body
	}
	if patch.Recipients != nil {
		c.draft.Recipients = ParseRecipients(*patch.Recipients)
	}
	return c.draftCopyLocked(), nil
}

// SendDraft submits the edited email. Validation failures never issue a
// network call; a failed send leaves the draft intact so the operator can
// amend and retry explicitly. On success the draft is discarded and the
// Requests store re-pulled so the validated status comes from the server.
func (c *Controller) SendDraft(ctx context.Context) error {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return ErrNoDraft
	}
	draft := c.draftCopyLocked()
	c.mu.Unlock()

	if strings.TrimSpace(draft.Body) == "" {
		return ErrEmptyBody
	}
	if len(draft.Recipients) == 0 {
		return ErrNoRecipients
	}
	if err := c.client.SendEmail(ctx, draft.RequestID, draft.Subject, draft.Body, draft.Recipients); err != nil {
		return err
	}

	c.mu.Lock()
	if c.draft != nil && c.draft.ID == draft.ID {
		c.draft = nil
	}
	c.mu.Unlock()
	c.logger.Info("email sent", "request", draft.RequestID)
	if err := c.requests.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after send failed", "err", err)
	}
	return nil
}

// CancelDraft discards the open draft, returning the request to pending from
// the client's point of view.
func (c *Controller) CancelDraft() {
	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()
}

// DeleteRequest removes a request permanently. The confirmation flag must be
// set by an explicit operator action; there is no auto-retry on failure.
func (c *Controller) DeleteRequest(ctx context.Context, id int64, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	if err := c.client.DeleteRequest(ctx, id); err != nil {
		return err
	}
	c.requests.Mutate(func(reqs []types.Request) []types.Request {
		// allocate: snapshots handed out by Get still alias the old array
		out := make([]types.Request, 0, len(reqs))
		for _, r := range reqs {
			if r.ID != id {
				out = append(out, r)
			}
		}
		return out
	})
	c.mu.Lock()
	if c.draft != nil && c.draft.RequestID == id {
		c.draft = nil
	}
	c.mu.Unlock()
	c.logger.Info("request deleted", "request", id)
	return nil
}

// CreateRequest validates names locally, then appends the server's record to
// the store. Server-side validation messages surface verbatim.
func (c *Controller) CreateRequest(ctx context.Context, in types.NewRequest) (*types.Request, error) {
	if strings.TrimSpace(in.Nom) == "" || strings.TrimSpace(in.Prenom) == "" {
		return nil, ErrMissingName
	}
	created, err := c.client.CreateRequest(ctx, in)
	if err != nil {
		return nil, err
	}
	c.requests.Mutate(func(reqs []types.Request) []types.Request {
		return append(reqs, *created)
	})
	return created, nil
}

func (c *Controller) findRequest(id int64) (types.Request, bool) {
	reqs, _ := c.requests.Get()
	for _, r := range reqs {
		if r.ID == id {
			return r, true
		}
	}
	return types.Request{}, false
}

func (c *Controller) draftCopyLocked() *types.EmailDraft {
	if c.draft == nil {
		return nil
	}
	cp := *c.draft
	cp.Recipients = append([]string(nil), c.draft.Recipients...)
	return &cp
}

// ParseRecipients splits free text on commas, trims, drops empties and
// collapses duplicates case-insensitively, keeping first-seen order.
func ParseRecipients(text string) []string {
	parts := strings.Split(text, ",")
	return dedupeRecipients(parts)
}

func dedupeRecipients(parts []string) []string {
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
