package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/rentaldesk/pkg/types"
)

// Metrics
var backendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rentaldesk_backend_requests_total",
	Help: "Total calls issued to the rental backend",
}, []string{"method", "endpoint", "status"})

// ErrUnauthorized marks an authorization-denied response. It is handled
// globally by the session gate and must not surface as a per-store error.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a structured backend failure carrying the server-provided message
// verbatim, used for validation failures next to the triggering action.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// TokenSource provides the current session token and receives the
// invalidation signal when a call is denied.
type TokenSource interface {
	Token() string
	Invalidate()
}

// Client is the single chokepoint for every backend call. All typed endpoint
// methods go through do, which attaches the bearer token and invalidates the
// session on a 401, regardless of which component issued the call.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Auth       TokenSource
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// do issues one JSON call. withAuth controls bearer injection: /health and
// /auth/login are the only anonymous endpoints.
func (c *Client) do(ctx context.Context, method, path string, in, out any, withAuth bool) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withAuth && c.Auth != nil {
		if tok := c.Auth.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.send(req, path, out)
}

func (c *Client) send(req *http.Request, endpoint string, out any) error {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		backendRequestsTotal.WithLabelValues(req.Method, endpoint, "error").Inc()
		return fmt.Errorf("backend unreachable: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	backendRequestsTotal.WithLabelValues(req.Method, endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.Logger != nil {
			c.Logger.Warn("session invalidated", "endpoint", endpoint)
		}
		if c.Auth != nil {
			c.Auth.Invalidate()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// decodeError extracts the backend's {"error": ...} message when present,
// falling back to a generic transport failure.
func decodeError(status int, data []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		if msg != "" {
			return &Error{Status: status, Message: msg}
		}
	}
	return &Error{Status: status, Message: fmt.Sprintf("backend error (status %d)", status)}
}

// Health probes whether the backend mandates authentication. Anonymous.
func (c *Client) Health(ctx context.Context) (*types.Health, error) {
	var out types.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges the administrator password for a session token. Anonymous.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	in := map[string]string{"password": password}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out, false); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login response has no token")
	}
	return out.Token, nil
}

func (c *Client) ListRequests(ctx context.Context) ([]types.Request, error) {
	var out []types.Request
	if err := c.do(ctx, http.MethodGet, "/demandes", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRequest(ctx context.Context, in types.NewRequest) (*types.Request, error) {
	var out types.Request
	if err := c.do(ctx, http.MethodPost, "/demandes", in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteRequest(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/demandes/%d", id), nil, nil, true)
}

func (c *Client) PreviewEmail(ctx context.Context, id int64) (*types.EmailPreview, error) {
	var out types.EmailPreview
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/demandes/%d/email/preview", id), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEmail submits the edited subject/body/recipients. The backend validates
// the request as a side effect of a successful send.
func (c *Client) SendEmail(ctx context.Context, id int64, subject, body string, recipients []string) error {
	in := map[string]any{
		"subject":    subject,
		"body":       body,
		"recipients": recipients,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/demandes/%d/email/send", id), in, nil, true)
}

func (c *Client) ListHistory(ctx context.Context) ([]types.HistoryEntry, error) {
	var out []types.HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/historique", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (*types.Statistics, error) {
	var out types.Statistics
	if err := c.do(ctx, http.MethodGet, "/reporting/stats", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListPartners(ctx context.Context) ([]types.Partner, error) {
	var out []types.Partner
	if err := c.do(ctx, http.MethodGet, "/sous-traitants", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeletePartner(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/sous-traitants/%d", id), nil, nil, true)
}

// UploadPartners bulk-imports partners from a spreadsheet via multipart.
func (c *Client) UploadPartners(ctx context.Context, filename string, file io.Reader) (*types.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/sous-traitants/upload"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.Auth != nil {
		if tok := c.Auth.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	var out types.UploadResult
	if err := c.send(req, "/sous-traitants/upload", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerIngestion asks the backend to scan the mailbox for new requests.
func (c *Client) TriggerIngestion(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/fetch_emails", nil, nil, true)
}

func (c *Client) FetchStatus(ctx context.Context) (*types.FetchStatus, error) {
	var out types.FetchStatus
	if err := c.do(ctx, http.MethodGet, "/fetch_status", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveCredentials(ctx context.Context, creds types.Credentials) error {
	return c.do(ctx, http.MethodPost, "/save_credentials", creds, nil, true)
}

func (c *Client) CredentialsStatus(ctx context.Context) (*types.CredentialsStatus, error) {
	var out types.CredentialsStatus
	if err := c.do(ctx, http.MethodGet, "/credentials/status", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportURL returns the direct download link for a CSV/report export. These
// are opened as files, not fetched as JSON.
func (c *Client) ExportURL(kind string) string {
	switch kind {
	case "demandes":
		return c.endpoint("/demandes/export")
	default:
		return c.endpoint("/reporting/export?type=" + kind)
	}
}

// Download streams an export link to w, carrying the bearer token.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.Auth != nil {
		if tok := c.Auth.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		if c.Auth != nil {
			c.Auth.Invalidate()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: fmt.Sprintf("export failed (status %d)", resp.StatusCode)}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}
