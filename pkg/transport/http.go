package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEndpoint  = "http://127.0.0.1:8000"
	DefaultQueryPath = "/chat/query"
	DefaultTimeout   = 120 * time.Second

	TurnIDHeader = "X-Turn-ID"

	maxErrorBody = 512
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat backend returned status %d: %s", e.StatusCode, e.Body)
}

// BackendError is the backend's own failure report, an {"error": "..."} object
// delivered with a success status.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "chat backend error: " + e.Message
}

type queryRequest struct {
	Messages []conversation.Entry `json:"messages"`
}

// HTTPTransport posts the transcript to the chat query endpoint and decodes
// the full conversation the backend sends back.
type HTTPTransport struct {
	endpoint  string
	queryPath string
	timeout   time.Duration
	client    *http.Client
}

var _ conversation.Transport = (*HTTPTransport)(nil)

type Option func(*HTTPTransport)

func WithEndpoint(endpoint string) Option {
	return func(t *HTTPTransport) {
		if endpoint != "" {
			t.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

func WithQueryPath(path string) Option {
	return func(t *HTTPTransport) {
		if path != "" {
			t.queryPath = "/" + strings.TrimLeft(path, "/")
		}
	}
}

// WithTimeout bounds each request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		t.timeout = d
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

func NewHTTPTransport(options ...Option) *HTTPTransport {
	t := &HTTPTransport{
		endpoint:  DefaultEndpoint,
		queryPath: DefaultQueryPath,
		timeout:   DefaultTimeout,
		client:    http.DefaultClient,
	}
	for _, o := range options {
		o(t)
	}
	return t
}

func (t *HTTPTransport) URL() string {
	return t.endpoint + t.queryPath
}

func (t *HTTPTransport) Send(ctx context.Context, transcript []conversation.Entry) ([]conversation.Entry, error) {
	if transcript == nil {
		transcript = []conversation.Entry{}
	}
	body, err := json.Marshal(queryRequest{Messages: transcript})
	if err != nil {
		return nil, errors.Wrap(err, "could not encode chat query")
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build chat query request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	turnID, _ := conversation.TurnIDFromContext(ctx)
	if turnID != "" {
		req.Header.Set(TurnIDHeader, turnID)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chat query failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read chat reply")
	}

	log.Debug().
		Str("turn_id", turnID).
		Str("url", t.URL()).
		Int("status", resp.StatusCode).
		Int("messages", len(transcript)).
		Dur("elapsed", time.Since(start)).
		Msg("chat query completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(payload)), maxErrorBody)}
	}

	return decodeReply(payload)
}

func decodeReply(payload []byte) ([]conversation.Entry, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var failure struct {
			Error *string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &failure); err == nil && failure.Error != nil {
			return nil, &BackendError{Message: *failure.Error}
		}
		return nil, errors.New("chat reply is an object, expected an array of messages")
	}

	var reply []conversation.Entry
	if err := json.Unmarshal(trimmed, &reply); err != nil {
		return nil, errors.Wrap(err, "could not decode chat reply")
	}
	if reply == nil {
		return nil, errors.New("chat reply is empty")
	}
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
