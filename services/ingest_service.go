// services/ingest_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/cache"
	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/models"
	"github.com/gewnthar/bondstats/scraper"
	"github.com/rs/zerolog"
)

// LinkSource lists the document URLs of a category.
type LinkSource interface {
	FindDocumentLinks(ctx context.Context, category string) ([]string, error)
}

// DocumentCache returns local copies of remote documents.
type DocumentCache interface {
	Resolve(ctx context.Context, url string) (*cache.Handle, error)
}

// VersionLogger records each ingested document. Optional.
type VersionLogger interface {
	LogDocumentVersion(ctx context.Context, v models.DataSourceVersion) error
}

// Batch is every row read from one category's documents, in document order.
type Batch struct {
	Category         string
	Rows             []models.RawRow
	DocumentsSeen    int
	DocumentsCached  int // resolved without a download, skipped or not
	DocumentsSkipped int
}

// Ingester turns a category's listed documents into raw rows.
type Ingester struct {
	categories map[string]config.CategoryConfig
	links      LinkSource
	cache      DocumentCache
	versions   VersionLogger
	logger     zerolog.Logger
	now        func() time.Time
}

// NewIngester wires an ingester. versions may be nil.
func NewIngester(cfg config.SourceConfig, links LinkSource, docs DocumentCache, versions VersionLogger, logger zerolog.Logger) *Ingester {
	return &Ingester{
		categories: cfg.Categories,
		links:      links,
		cache:      docs,
		versions:   versions,
		logger:     logger.With().Str("component", "Ingester").Logger(),
		now:        time.Now,
	}
}

// IngestCategory reads every distinct document of category in listing order.
// Documents that cannot be parsed or dated are skipped; a download or
// storage failure ends the category with an error.
func (in *Ingester) IngestCategory(ctx context.Context, category string) (*Batch, error) {
	cc, ok := in.categories[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	links, err := in.links.FindDocumentLinks(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s documents: %w", category, err)
	}

	batch := &Batch{Category: category}
	seen := make(map[string]bool, len(links))
	for _, url := range links {
		if seen[url] {
			in.logger.Debug().Str("url", url).Msg("Skipping duplicate link")
			continue
		}
		seen[url] = true
		batch.DocumentsSeen++

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, hit, err := in.ingestDocument(ctx, category, cc, url)
		if hit {
			batch.DocumentsCached++
		}
		if apperror.IsParse(err) {
			in.logger.Warn().Err(err).Str("category", category).Str("url", url).Msg("Skipping document")
			batch.DocumentsSkipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", url, err)
		}
		batch.Rows = append(batch.Rows, rows...)
	}

	in.logger.Info().
		Str("category", category).
		Int("documents", batch.DocumentsSeen).
		Int("skipped", batch.DocumentsSkipped).
		Int("from_cache", batch.DocumentsCached).
		Int("rows", len(batch.Rows)).
		Msg("Ingested category")
	return batch, nil
}

func (in *Ingester) ingestDocument(ctx context.Context, category string, cc config.CategoryConfig, url string) ([]models.RawRow, bool, error) {
	handle, err := in.cache.Resolve(ctx, url)
	if err != nil {
		return nil, false, err
	}
	hit := handle.Hit
	data, err := handle.Bytes()
	if err != nil {
		return nil, hit, err
	}

	periodCell := ""
	if cc.PeriodFromHeader {
		periodCell = cc.PeriodCell
		if periodCell == "" {
			periodCell = "A1"
		}
	}
	wb, err := scraper.ParseWorkbook(data, cc.SkipRows, periodCell)
	if err != nil {
		return nil, hit, apperror.NewParseError(url, "not a readable workbook", err)
	}

	var period time.Time
	if cc.PeriodFromHeader {
		p, raw, ok := scraper.ParsePeriod(wb.HeaderText)
		if !ok {
			return nil, hit, apperror.NewParseError(url, fmt.Sprintf("header %q", wb.HeaderText), apperror.ErrNoPeriod)
		}
		in.logger.Debug().Str("url", url).Str("match", raw).Time("period", p).Msg("Dated document")
		period = p
	}

	for i := range wb.Rows {
		wb.Rows[i].SourceURL = url
		wb.Rows[i].Period = period
	}

	in.logVersion(ctx, category, handle, data, period, len(wb.Rows))
	return wb.Rows, hit, nil
}

func (in *Ingester) logVersion(ctx context.Context, category string, handle *cache.Handle, data []byte, period time.Time, rows int) {
	if in.versions == nil {
		return
	}
	sum := sha256.Sum256(data)
	v := models.DataSourceVersion{
		Category:       category,
		SourceURL:      handle.Entry.RemoteURL,
		LocalKey:       handle.Entry.LocalKey,
		RowsRead:       rows,
		DataHash:       hex.EncodeToString(sum[:]),
		LastIngestedAt: in.now().UTC(),
	}
	if !period.IsZero() {
		v.Period = &period
	}
	if err := in.versions.LogDocumentVersion(ctx, v); err != nil {
		in.logger.Warn().Err(err).Str("url", v.SourceURL).Msg("Failed to record document version")
	}
}
