package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yourorg/rentaldesk/internal/api"
	"github.com/yourorg/rentaldesk/internal/store"
	"github.com/yourorg/rentaldesk/pkg/types"
)

// testBackend serves the request-lifecycle endpoints against a fixed dataset.
type testBackend struct {
	requests  []types.Request
	sendCalls atomic.Int64
	lastSend  map[string]any
}

func (b *testBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /demandes", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(b.requests)
	})
	mux.HandleFunc("POST /demandes", func(w http.ResponseWriter, r *http.Request) {
		var in types.NewRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		created := types.Request{ID: 99, Nom: in.Nom, Prenom: in.Prenom, Statut: types.StatusPending}
		_ = json.NewEncoder(w).Encode(created)
	})
	mux.HandleFunc("DELETE /demandes/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	})
	mux.HandleFunc("GET /demandes/{id}/email/preview", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(types.EmailPreview{
			Subject:    "Demande location Annecy",
			Body:       "Bonjour,\nNous avons une demande.",
			Recipients: []string{"a@partner.fr", "A@partner.fr", "b@partner.fr"},
			Ville:      "Annecy",
			Lang:       "fr",
		})
	})
	mux.HandleFunc("POST /demandes/{id}/email/send", func(w http.ResponseWriter, r *http.Request) {
		b.sendCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&b.lastSend)
		// the send validates the request server-side
		for i := range b.requests {
			b.requests[i].Statut = types.StatusValidated
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	})
	return mux
}

func newTestController(t *testing.T) (*Controller, *testBackend, *store.Store[[]types.Request]) {
	t.Helper()
	backend := &testBackend{
		requests: []types.Request{
			{ID: 1, Nom: "Dupont", Prenom: "Marie", Ville: "Annecy", Statut: types.StatusPending},
			{ID: 2, Nom: "Rossi", Prenom: "Luca", Ville: "Torino", Statut: types.StatusValidated},
		},
	}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	client := &api.Client{BaseURL: srv.URL, HTTPClient: srv.Client()}
	requests := store.New("requests", client.ListRequests)
	if err := requests.Refresh(context.Background()); err != nil {
		t.Fatalf("seed requests: %v", err)
	}
	return New(client, requests, nil), backend, requests
}

func TestPreviewOpensDraft(t *testing.T) {
	c, _, _ := newTestController(t)
	draft, err := c.PreviewEmail(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if draft.RequestID != 1 || draft.Subject == "" || draft.ID == "" {
		t.Fatalf("incomplete draft %+v", draft)
	}
	// suggested recipients are deduped case-insensitively
	if len(draft.Recipients) != 2 {
		t.Fatalf("recipients not deduped: %v", draft.Recipients)
	}
	if got := c.Draft(); got == nil || got.ID != draft.ID {
		t.Fatalf("draft not retained")
	}
}

func TestPreviewRejectsNonPending(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.PreviewEmail(context.Background(), 2); !errors.Is(err, ErrNotPreviewable) {
		t.Fatalf("expected ErrNotPreviewable, got %v", err)
	}
	if _, err := c.PreviewEmail(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if c.Draft() != nil {
		t.Fatalf("rejected preview must not open a draft")
	}
}

func TestEditThenSendValidatesRequest(t *testing.T) {
	c, backend, requests := newTestController(t)
	if _, err := c.PreviewEmail(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	subject := "Sujet modifie"
	recipients := "x@y.fr, z@w.fr"
	if _, err := c.EditDraft(DraftPatch{Subject: &subject, Recipients: &recipients}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendDraft(context.Background()); err != nil {
		t.Fatal(err)
	}
	if backend.sendCalls.Load() != 1 {
		t.Fatalf("expected one send call, got %d", backend.sendCalls.Load())
	}
	if backend.lastSend["subject"] != "Sujet modifie" {
		t.Fatalf("edited subject not sent: %v", backend.lastSend)
	}
	if c.Draft() != nil {
		t.Fatalf("draft must be discarded after send")
	}
	// the validated status comes back from the server on the refresh
	reqs, _ := requests.Get()
	if reqs[0].Statut != types.StatusValidated {
		t.Fatalf("request not re-pulled after send: %+v", reqs[0])
	}
}

func TestSendValidationNeverHitsNetwork(t *testing.T) {
	c, backend, _ := newTestController(t)
	if err := c.SendDraft(context.Background()); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}

	if _, err := c.PreviewEmail(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	empty := "   "
	if _, err := c.EditDraft(DraftPatch{Body: &empty}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendDraft(context.Background()); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	body := "Corps"
	none := ""
	if _, err := c.EditDraft(DraftPatch{Body: &body, Recipients: &none}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendDraft(context.Background()); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("expected ErrNoRecipients, got %v", err)
	}

	if backend.sendCalls.Load() != 0 {
		t.Fatalf("validation failures must not reach the backend")
	}
	if c.Draft() == nil {
		t.Fatalf("failed validation must keep the draft open for amending")
	}
}

func TestCancelDraftRestoresPending(t *testing.T) {
	c, backend, requests := newTestController(t)
	if _, err := c.PreviewEmail(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	c.CancelDraft()
	if c.Draft() != nil {
		t.Fatalf("draft survived cancel")
	}
	if backend.sendCalls.Load() != 0 {
		t.Fatalf("cancel must not send anything")
	}
	reqs, _ := requests.Get()
	if reqs[0].Statut != types.StatusPending {
		t.Fatalf("request must stay pending after cancel")
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	c, _, requests := newTestController(t)
	if err := c.DeleteRequest(context.Background(), 1, false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if err := c.DeleteRequest(context.Background(), 1, true); err != nil {
		t.Fatal(err)
	}
	reqs, _ := requests.Get()
	for _, r := range reqs {
		if r.ID == 1 {
			t.Fatalf("deleted request still in store")
		}
	}
}

func TestDeleteLeavesHeldSnapshotIntact(t *testing.T) {
	c, _, requests := newTestController(t)
	snapshot, _ := requests.Get()
	if len(snapshot) != 2 || snapshot[0].ID != 1 || snapshot[1].ID != 2 {
		t.Fatalf("unexpected seed snapshot %+v", snapshot)
	}

	if err := c.DeleteRequest(context.Background(), 1, true); err != nil {
		t.Fatal(err)
	}

	// a snapshot taken before the delete must not be rewritten in place
	if len(snapshot) != 2 || snapshot[0].ID != 1 || snapshot[1].ID != 2 {
		t.Fatalf("held snapshot corrupted by delete: %+v", snapshot)
	}
	reqs, _ := requests.Get()
	if len(reqs) != 1 || reqs[0].ID != 2 {
		t.Fatalf("unexpected collection after delete: %+v", reqs)
	}
}

func TestDeleteDiscardsMatchingDraft(t *testing.T) {
	c, _, _ := newTestController(t)
	if _, err := c.PreviewEmail(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteRequest(context.Background(), 1, true); err != nil {
		t.Fatal(err)
	}
	if c.Draft() != nil {
		t.Fatalf("draft for a deleted request must be discarded")
	}
}

func TestCreateRequest(t *testing.T) {
	c, _, requests := newTestController(t)
	if _, err := c.CreateRequest(context.Background(), types.NewRequest{Nom: " ", Prenom: "x"}); !errors.Is(err, ErrMissingName) {
		t.Fatalf("expected ErrMissingName, got %v", err)
	}
	created, err := c.CreateRequest(context.Background(), types.NewRequest{Nom: "Durand", Prenom: "Paul"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != 99 || !created.Pending() {
		t.Fatalf("unexpected created request %+v", created)
	}
	reqs, _ := requests.Get()
	if reqs[len(reqs)-1].ID != 99 {
		t.Fatalf("created request not appended to store")
	}
}

func TestParseRecipients(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a@b.fr", []string{"a@b.fr"}},
		{" a@b.fr , c@d.fr ", []string{"a@b.fr", "c@d.fr"}},
		{"a@b.fr,A@B.FR,c@d.fr", []string{"a@b.fr", "c@d.fr"}},
		{" , ,", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := ParseRecipients(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("ParseRecipients(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("ParseRecipients(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
	if got := ParseRecipients("B@x.fr,b@x.fr"); got[0] != "B@x.fr" {
		t.Fatalf("first-seen casing must win, got %v", got)
	}
}
