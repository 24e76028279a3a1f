package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/roach88/storesync/internal/delta"
)

const (
	// DefaultTimeout is the default timeout for a batch request
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response size (32MB)
	MaxResponseSize = 32 * 1024 * 1024

	// UserAgent is the user agent string for locator requests
	UserAgent = "storesync/1.0"
)

// HTTPError represents a non-200 response from the locator.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// batchRequest is the JSON body posted to the locator.
type batchRequest struct {
	FieldRoles FieldRoles    `json:"field_roles"`
	Records    []batchRecord `json:"records"`
}

type batchRecord struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	ID       string `json:"id"`
	Location struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"location"`
	Score     float64 `json:"score"`
	Status    string  `json:"status"`
	MatchAddr string  `json:"match_addr"`
}

// HTTPResolver resolves addresses against a JSON batch locator endpoint.
type HTTPResolver struct {
	client *http.Client
	url    string
	roles  FieldRoles
}

// NewHTTPResolver creates a resolver posting to url. If timeout is 0,
// DefaultTimeout is used.
func NewHTTPResolver(url string, timeout time.Duration, roles FieldRoles) *HTTPResolver {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPResolver{
		client: &http.Client{Timeout: timeout},
		url:    url,
		roles:  roles.WithDefaults(),
	}
}

var _ Resolver = (*HTTPResolver)(nil)

// Resolve posts all records in one request. An empty batch makes no call.
func (r *HTTPResolver) Resolve(ctx context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error) {
	if len(records) == 0 {
		return []delta.GeocodeOutcome{}, nil
	}

	req := batchRequest{FieldRoles: r.roles, Records: make([]batchRecord, len(records))}
	for i, rec := range records {
		req.Records[i] = batchRecord{
			ID:         rec.StoreID,
			Attributes: r.roles.Fields(NormalizeAddress(rec.Address)),
		}
	}

	body, err := r.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode locator response: %w", err)
	}

	outcomes := make([]delta.GeocodeOutcome, len(resp.Results))
	for i, res := range resp.Results {
		outcomes[i] = delta.GeocodeOutcome{
			StoreID:        res.ID,
			Location:       delta.Location{Lat: res.Location.Y, Lon: res.Location.X},
			Tier:           delta.ParseMatchTier(res.Status),
			Score:          res.Score,
			MatchedAddress: res.MatchAddr,
		}
	}

	if err := ValidateOutcomes(records, outcomes); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *HTTPResolver) post(ctx context.Context, payload batchRequest) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: r.url, Message: resp.Status}
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// +1 to detect if limit exceeded
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return body, nil
}
