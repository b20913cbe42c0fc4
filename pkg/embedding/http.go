package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"docrag-be/pkg/apperror"

	"golang.org/x/time/rate"
)

// HTTPClient is the shared transport for remote embedding backends. Every request waits on the
// limiter so a burst of pipeline workers cannot exceed the provider's quota.
type HTTPClient struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPClient(timeout time.Duration, ratePerSec float64) *HTTPClient {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(math.Max(1, ratePerSec))
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PostJSON sends body and returns the raw response. Connectivity failures, 429 and 5xx come back
// as transient errors; other non-2xx statuses are permanent.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperror.Wrap(apperror.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrEmbeddingUnavailable, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, apperror.Wrap(apperror.ErrEmbeddingUnavailable,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(respBody, 512)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding backend rejected request (status %d): %s", resp.StatusCode, truncate(respBody, 512))
	}
	return respBody, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// normalizeVector normalizes a vector to unit length (magnitude = 1).
// Cosine distance in pgvector expects normalized vectors.
func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}

func checkDimension(name string, want int, vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != want {
			return apperror.WithMessage(apperror.ErrDimensionMismatch,
				"%s returned a %d-dimensional vector, expected %d", name, len(v), want)
		}
	}
	return nil
}
