package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"docrag-be/pkg/apperror"

	"golang.org/x/time/rate"
)

// HTTPTransport is shared by the HTTP backends. It carries no client
// timeout because streams can run long; callers bound requests with ctx.
type HTTPTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPTransport(ratePerSec float64) *HTTPTransport {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(math.Max(1, ratePerSec))
	}
	return &HTTPTransport{
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// PostJSON sends body and returns the open response on 2xx. The caller closes
// the body. Connectivity failures, 429 and 5xx are wrapped in
// ErrGenerationFailed so that callers may retry them.
func (t *HTTPTransport) PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperror.Wrap(apperror.ErrGenerationFailed, err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperror.Wrap(apperror.ErrGenerationFailed, statusErr)
		}
		return nil, fmt.Errorf("generation backend rejected request: %w", statusErr)
	}
	return resp, nil
}

// ScanLines calls fn for every non-empty line of r until fn reports done or
// returns an error. A read failure caused by ctx is reported as ctx.Err().
func ScanLines(ctx context.Context, r io.Reader, fn func(line string) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		done, err := fn(line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperror.Wrap(apperror.ErrGenerationFailed, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
