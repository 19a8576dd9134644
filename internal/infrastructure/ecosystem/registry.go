package ecosystem

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/relicta-tech/changelogs/internal/errors"
)

const (
	userAgent       = "changelogs (https://github.com/relicta-tech/changelogs)"
	maxRegistryBody = 8 << 20
)

type registryResponse struct {
	status int
	body   []byte
}

type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.url, e.status)
}

// registryClient performs the read-only "is this version published" probes.
type registryClient struct {
	http    *http.Client
	retrier retry.Retry[*registryResponse]
	logger  *log.Logger
}

func newRegistryClient(c *http.Client, logger *log.Logger) *registryClient {
	return &registryClient{
		http:   c,
		logger: logger,
		retrier: retry.New[*registryResponse](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  250 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   isRetryableProbe,
		}),
	}
}

// get fetches url. 404 is a normal response; 429 and 5xx are retried and
// then reported as errors.
func (c *registryClient) get(ctx context.Context, url string) (*registryResponse, error) {
	const op = "ecosystem.registry"

	resp, err := c.retrier.Do(ctx, func(ctx context.Context) (*registryResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		c.logger.Debug("probing registry", "url", url)
		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(io.LimitReader(res.Body, maxRegistryBody))
		if err != nil {
			return nil, err
		}
		if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500 {
			return nil, &statusError{url: url, status: res.StatusCode}
		}
		return &registryResponse{status: res.StatusCode, body: body}, nil
	})
	if err != nil {
		return nil, errors.NetworkWrap(err, op, "registry request failed")
	}
	return resp, nil
}

// exists reports whether url answers 200; 404 means absent.
func (c *registryClient) exists(ctx context.Context, url string) (bool, []byte, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return false, nil, err
	}
	switch resp.status {
	case http.StatusOK:
		return true, resp.body, nil
	case http.StatusNotFound:
		return false, nil, nil
	default:
		return false, nil, errors.NetworkWrap(&statusError{url: url, status: resp.status}, "ecosystem.registry", "unexpected registry response")
	}
}

func isRetryableProbe(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if stderrors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// transport errors
	return true
}
