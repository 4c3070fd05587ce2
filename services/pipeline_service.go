// services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gewnthar/bondstats/aggregate"
	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/normalize"
	"github.com/gewnthar/bondstats/output"
	"github.com/rs/zerolog"
)

// Output dataset names.
const (
	DatasetHoldings          = "holdings"
	DatasetMedianRents       = "median-rents"
	DatasetMedianRentsByBeds = "median-rents-bedrooms"
	DatasetRefundTotals      = "refunds-totals"
	DatasetRefundPortions    = "refunds-portions"
	DatasetLodgementsNormal  = "lodgements"
	DatasetRefundsNormal     = "refunds"
)

// CategorySummary describes one category's run.
type CategorySummary struct {
	Category         string   `json:"category"`
	DocumentsSeen    int      `json:"documents_seen"`
	DocumentsSkipped int      `json:"documents_skipped"`
	DocumentsCached  int      `json:"documents_cached"`
	RowsKept         int      `json:"rows_kept"`
	RowsDropped      int      `json:"rows_dropped"`
	Datasets         []string `json:"datasets"`
	Error            string   `json:"error,omitempty"`
}

// Summary describes a full run.
type Summary struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Categories []CategorySummary `json:"categories"`
}

// Pipeline ingests, normalizes, aggregates and writes each category in turn.
type Pipeline struct {
	ingester        *Ingester
	writer          *output.Writer
	writeNormalized bool
	logger          zerolog.Logger
}

func NewPipeline(ingester *Ingester, writer *output.Writer, writeNormalized bool, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		ingester:        ingester,
		writer:          writer,
		writeNormalized: writeNormalized,
		logger:          logger.With().Str("component", "Pipeline").Logger(),
	}
}

// Run processes every category. A failed category keeps its previous outputs
// and the run moves on; a storage failure stops the run. The returned error
// joins every category failure.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now().UTC()}
	var errs []error
	for _, category := range config.Categories {
		cs, err := p.RunCategory(ctx, category)
		if err != nil {
			cs.Error = err.Error()
		}
		summary.Categories = append(summary.Categories, *cs)
		if err == nil {
			continue
		}
		if apperror.IsStorage(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}
		p.logger.Error().Err(err).Str("category", category).Msg("Category failed, previous outputs kept")
		errs = append(errs, err)
	}
	summary.FinishedAt = time.Now().UTC()
	return summary, errors.Join(errs...)
}

// RunCategory refreshes the datasets derived from one category. The summary
// is never nil.
func (p *Pipeline) RunCategory(ctx context.Context, category string) (*CategorySummary, error) {
	cs := &CategorySummary{Category: category}

	batch, err := p.ingester.IngestCategory(ctx, category)
	if err != nil {
		return cs, fmt.Errorf("category %s: %w", category, err)
	}
	cs.DocumentsSeen = batch.DocumentsSeen
	cs.DocumentsSkipped = batch.DocumentsSkipped
	cs.DocumentsCached = batch.DocumentsCached

	var tables []table
	switch category {
	case config.CategoryHoldings:
		res := normalize.Table(batch.Rows, normalize.Holding)
		p.logDropped(category, res.Dropped, res.FirstError)
		cs.RowsKept, cs.RowsDropped = len(res.Records), res.Dropped
		tables = append(tables, newTable(DatasetHoldings, aggregate.Holdings(res.Records)))

	case config.CategoryLodgements:
		res := normalize.Table(batch.Rows, normalize.Lodgement)
		p.logDropped(category, res.Dropped, res.FirstError)
		cs.RowsKept, cs.RowsDropped = len(res.Records), res.Dropped
		tables = append(tables,
			newTable(DatasetMedianRents, aggregate.MedianRents(res.Records)),
			newTable(DatasetMedianRentsByBeds, aggregate.BedroomMedianRents(res.Records)),
		)
		if p.writeNormalized {
			tables = append(tables, newTable(DatasetLodgementsNormal, aggregate.LodgementRows(res.Records)))
		}

	case config.CategoryRefunds:
		res := normalize.Table(batch.Rows, normalize.Refund)
		p.logDropped(category, res.Dropped, res.FirstError)
		cs.RowsKept, cs.RowsDropped = len(res.Records), res.Dropped
		tables = append(tables,
			newTable(DatasetRefundTotals, aggregate.RefundTotals(res.Records)),
			newTable(DatasetRefundPortions, aggregate.RefundPortions(res.Records)),
		)
		if p.writeNormalized {
			tables = append(tables, newTable(DatasetRefundsNormal, aggregate.RefundRows(res.Records)))
		}

	default:
		return cs, fmt.Errorf("category %s: no datasets defined", category)
	}

	for _, t := range tables {
		if err := t.write(p.writer); err != nil {
			return cs, fmt.Errorf("category %s: write %s: %w", category, t.name, err)
		}
		cs.Datasets = append(cs.Datasets, t.name)
	}

	p.logger.Info().
		Str("category", category).
		Int("rows_kept", cs.RowsKept).
		Int("rows_dropped", cs.RowsDropped).
		Strs("datasets", cs.Datasets).
		Msg("Category refreshed")
	return cs, nil
}

func (p *Pipeline) logDropped(category string, dropped int, first error) {
	if dropped == 0 {
		return
	}
	p.logger.Warn().Str("category", category).Int("dropped", dropped).AnErr("first_error", first).Msg("Dropped unusable rows")
}

// table defers a typed WriteTable call.
type table struct {
	name  string
	write func(*output.Writer) error
}

func newTable[T any](name string, rows []T) table {
	return table{name: name, write: func(w *output.Writer) error { return output.WriteTable(w, name, rows) }}
}
