// Package records reads learning records from the learning service.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

// Sentinel errors for record lookups.
var (
	ErrRecordNotFound     = errors.New("learning record not found")
	ErrServiceUnreachable = errors.New("learning service unreachable")
	ErrServiceError       = errors.New("learning service error")
	ErrServiceTimeout     = errors.New("learning service timeout")
)

// Reader returns the question and student answer for a learning record.
type Reader interface {
	GetSourceRecord(ctx context.Context, recordID string) (*models.SourceRecord, error)
}

// HTTPClient implements Reader using the learning service's HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a new learning service client.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetSourceRecord(ctx context.Context, recordID string) (*models.SourceRecord, error) {
	u := fmt.Sprintf("%s/api/v1/records/%s", c.baseURL, url.PathEscape(recordID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, recordID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrServiceError, resp.StatusCode)
	}

	var rec models.SourceRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding record response: %w", err)
	}
	if rec.ID == "" {
		rec.ID = recordID
	}
	return &rec, nil
}

// Ready checks that the learning service answers its health endpoint.
func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/api/v1/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: not ready (status %d)", ErrServiceUnreachable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
}

var _ Reader = (*HTTPClient)(nil)
