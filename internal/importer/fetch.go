package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
)

var (
	errEmptyBody      = errors.New("empty response body")
	errTooLarge       = errors.New("response body too large")
	errUnknownLocator = errors.New("unsupported image locator")
	errNoFetcher      = errors.New("remote images are disabled")
)

// FetchConfig controls remote image downloads.
type FetchConfig struct {
	Timeout  time.Duration
	Attempts uint
	MaxBytes int64
	// RetryDelay is the base delay of the exponential backoff.
	RetryDelay time.Duration
}

// Fetcher downloads remote images.
type Fetcher struct {
	client *resty.Client
	cfg    FetchConfig
}

// NewFetcher creates a Fetcher with the given limits.
func NewFetcher(cfg FetchConfig) *Fetcher {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "flashdeck-importer")
	return &Fetcher{client: client, cfg: cfg}
}

// Fetch returns the body of url. Client errors fail at once; transport
// errors and server errors are retried with backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			data, err := f.fetchOnce(ctx, url)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.cfg.Attempts),
		retry.Delay(f.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	res, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("client.R.Get > %w", err)
	}
	raw := res.RawBody()
	defer raw.Close()

	status := res.StatusCode()
	switch {
	case status >= http.StatusInternalServerError || status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("status code: %d", status)
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		return nil, retry.Unrecoverable(fmt.Errorf("status code: %d", status))
	}

	var r io.Reader = raw
	if f.cfg.MaxBytes > 0 {
		r = io.LimitReader(raw, f.cfg.MaxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body > %w", err)
	}
	if len(body) == 0 {
		return nil, retry.Unrecoverable(errEmptyBody)
	}
	if f.cfg.MaxBytes > 0 && int64(len(body)) > f.cfg.MaxBytes {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: over %d bytes", errTooLarge, f.cfg.MaxBytes))
	}
	return body, nil
}
