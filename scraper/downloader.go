// scraper/downloader.go
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/rs/zerolog"
)

// maxDocumentSize caps a single download. The largest published workbooks are a few MB.
const maxDocumentSize = 256 << 20

// Downloader fetches remote documents over HTTP. It satisfies cache.Fetcher.
type Downloader struct {
	client    *http.Client
	userAgent string
	logger    zerolog.Logger
}

// NewDownloader creates a Downloader with a sensible timeout for file downloads.
func NewDownloader(timeout time.Duration, userAgent string, logger zerolog.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger.With().Str("component", "Downloader").Logger(),
	}
}

// Fetch downloads url and returns its body. Every failure, including a non-200
// status, is reported as an *apperror.TransportError.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	d.logger.Debug().Str("url", url).Msg("Downloading document")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperror.NewTransportError(url, "invalid request", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperror.NewTransportError(url, "GET failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.NewTransportError(url, fmt.Sprintf("received status code %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, apperror.NewTransportError(url, "failed to read body", err)
	}
	if len(body) > maxDocumentSize {
		return nil, apperror.NewTransportError(url, "document exceeds size limit", nil)
	}

	d.logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("Downloaded document")
	return body, nil
}
