package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/MonteBryce/fieldsync/internal/config"
	"github.com/MonteBryce/fieldsync/internal/events"
	"github.com/MonteBryce/fieldsync/internal/models"
)

// HTTPStore talks to the remote document store over HTTP. Each call is a
// single attempt bounded by the configured timeout; retry policy lives in
// the sync queue, keyed off entry state, not here.
type HTTPStore struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger
}

// NewHTTPStore creates a remote store client.
func NewHTTPStore(cfg *config.RemoteConfig, logger *events.Logger) *HTTPStore {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPStore{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("component", "remote_store"),
	}
}

// Get fetches a document's fields.
func (s *HTTPStore) Get(ctx context.Context, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(ctx, req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, s.networkErr("get", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrDocNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.statusErr(resp)
	}

	var fields map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", path, err)
	}

	return fields, nil
}

// SetWithMerge upserts fields into the document at path.
func (s *HTTPStore) SetWithMerge(ctx context.Context, path string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path": path,
		"size": len(body),
	}).Debug("Merging document")

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	s.setHeaders(ctx, req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return s.networkErr("merge", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return s.statusErr(resp)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *HTTPStore) url(path string) string {
	return s.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (s *HTTPStore) setHeaders(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	// Bulk jobs tag their context; forwarding the tag lets the remote side
	// correlate a job's writes.
	if job := events.TagValue(ctx, events.TagJob); job != "" {
		req.Header.Set("X-Sync-Job", job)
	}
}

// networkErr classifies transport-level failures, including timeouts, as
// unreachable. A timed-out write may still have been applied remotely,
// which is safe only because writes are merge-upserts.
func (s *HTTPStore) networkErr(op, path string, err error) error {
	return &models.RemoteError{
		Code:    models.ErrCodeUnreachable,
		Message: fmt.Sprintf("%s %s: %v", op, path, err),
		Err:     fmt.Errorf("%w: %v", models.ErrRemoteUnreachable, err),
	}
}

// statusErr classifies HTTP status codes: server-side and throttling
// responses are transient, anything else the remote has definitively
// rejected.
func (s *HTTPStore) statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}

	code := models.ErrCodeRejected
	if isRetryable(resp.StatusCode) {
		code = models.ErrCodeUnreachable
	}

	return &models.RemoteError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    msg,
	}
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		(status >= 500 && status < 600)
}
