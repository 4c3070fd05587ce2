package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/cache"
	"github.com/gewnthar/bondstats/config"
	"github.com/gewnthar/bondstats/models"
	"github.com/gewnthar/bondstats/normalize"
	"github.com/gewnthar/bondstats/output"
	"github.com/gewnthar/bondstats/scraper"
	"github.com/gewnthar/bondstats/testhelpers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docPath = "/__data/assets/excel_doc/"

// fakeSource serves a listing page and the workbooks it links to, counting
// document downloads.
type fakeSource struct {
	srv       *httptest.Server
	mu        sync.Mutex
	docs      map[string][]byte
	downloads map[string]int
	listing   string
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	fs := &fakeSource{docs: map[string][]byte{}, downloads: map[string]int{}}

	lodgementCols := []string{"Lodgement Date", "Postcode", "Dwelling Type", "Bedrooms", "Weekly  Rent"}
	fs.docs["lodgements-january-2023.xlsx"] = testhelpers.Workbook(t, "Rental bond lodgements January 2023", lodgementCols, [][]any{
		{time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC), 2000, "F", 1, 400},
		{time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), 2000, "H", 2, 600},
		{"2023-01-11", 2000, "F", "N/A", 450},
	})
	fs.docs["lodgements-february-2023.xlsx"] = testhelpers.Workbook(t, "Rental bond lodgements February 2023", lodgementCols, [][]any{
		{"2023-02-01", 2010, "F", 2, 550},
	})
	fs.docs["lodgements-broken.xlsx"] = []byte("this is not a workbook")

	fs.docs["refunds-march-2023.xlsx"] = testhelpers.Workbook(t, "Rental bond refunds March 2023",
		[]string{"Payment Date", "Postcode", "Dwelling Type", "Bedrooms", "Payment To Agent", "Payment To Tenant", "Days Bond Held"},
		[][]any{
			{"2023-03-01", 2000, "F", 1, 0, 1000, 365},
			{"2023-03-02", 2000, "F", 1, 1000, 0, 200},
			{"2023-03-03", 2010, "H", 2, 0, 0, 30},
		})

	holdingCols := []string{"Postcode", "Bonds Held"}
	fs.docs["holdings-june-2023.xlsx"] = testhelpers.Workbook(t, "Rental bonds held as at end of June 2023", holdingCols, [][]any{
		{2010, 700},
		{2000, 1500},
	})
	fs.docs["holdings-undated.xlsx"] = testhelpers.Workbook(t, "Rental bonds held", holdingCols, [][]any{
		{2000, 1},
	})

	fs.listing = `<html><body>
<div id="panel1"><div><table>
<tr><td><a href="` + docPath + `lodgements-january-2023.xlsx">January</a></td></tr>
<tr><td><a href="` + docPath + `lodgements-january-2023.xlsx">January again</a></td></tr>
<tr><td><a href="` + docPath + `lodgements-broken.xlsx">Broken</a></td></tr>
<tr><td><a href="` + docPath + `lodgements-february-2023.xlsx">February</a></td></tr>
</table></div></div>
<div id="panel2"><div><table>
<tr><td><a href="` + docPath + `refunds-march-2023.xlsx">March</a></td></tr>
</table></div></div>
<div id="panel3"><div><ul>
<li><a href="` + docPath + `holdings-june-2023.xlsx">June</a></li>
<li><a href="` + docPath + `holdings-undated.xlsx">Undated</a></li>
</ul></div></div>
</body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/rental-bond-data", func(w http.ResponseWriter, _ *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		w.Write([]byte(fs.listing))
	})
	mux.HandleFunc(docPath, func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, docPath)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		data, ok := fs.docs[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fs.downloads[name]++
		w.Write(data)
	})
	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeSource) downloadCount(name string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.downloads[name]
}

type recordingVersions struct {
	mu       sync.Mutex
	versions []models.DataSourceVersion
}

func (r *recordingVersions) LogDocumentVersion(_ context.Context, v models.DataSourceVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, v)
	return nil
}

type harness struct {
	cfg      *config.Config
	cache    *cache.Store
	writer   *output.Writer
	pipeline *Pipeline
}

func newHarness(t *testing.T, fs *fakeSource, versions VersionLogger) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Source.ListURL = fs.srv.URL + "/rental-bond-data"
	cfg.Source.DocumentPrefix = fs.srv.URL + docPath
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Output.Dir = filepath.Join(dir, "output")
	cfg.Output.WriteNormalized = true
	return newHarnessWithConfig(t, cfg, versions)
}

func newHarnessWithConfig(t *testing.T, cfg *config.Config, versions VersionLogger) *harness {
	t.Helper()
	log := zerolog.Nop()
	downloader := scraper.NewDownloader(5*time.Second, cfg.HTTP.UserAgent, log)

	store, err := cache.Open(cfg.Cache, downloader, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	writer, err := output.NewWriter(cfg.Output, log)
	require.NoError(t, err)

	ingester := NewIngester(cfg.Source, scraper.NewLinkFinder(cfg.Source, downloader, log), store, versions, log)
	return &harness{cfg: cfg, cache: store, writer: writer, pipeline: NewPipeline(ingester, writer, cfg.Output.WriteNormalized, log)}
}

func readCSV[T any](t *testing.T, w *output.Writer, name string) []T {
	t.Helper()
	rows, err := output.ReadCSV[T](w.Path(name, output.CSVExt))
	require.NoError(t, err)
	return rows
}

func TestPipeline_Run(t *testing.T) {
	fs := newFakeSource(t)
	versions := &recordingVersions{}
	h := newHarness(t, fs, versions)

	summary, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Categories, 3)

	byCategory := map[string]CategorySummary{}
	for _, cs := range summary.Categories {
		byCategory[cs.Category] = cs
	}
	lodge := byCategory[config.CategoryLodgements]
	assert.Equal(t, 3, lodge.DocumentsSeen, "duplicate link is read once")
	assert.Equal(t, 1, lodge.DocumentsSkipped, "broken workbook is skipped")
	assert.Equal(t, 3, lodge.RowsKept)
	assert.Equal(t, 1, lodge.RowsDropped)
	assert.Equal(t, []string{DatasetMedianRents, DatasetMedianRentsByBeds, DatasetLodgementsNormal}, lodge.Datasets)

	hold := byCategory[config.CategoryHoldings]
	assert.Equal(t, 2, hold.DocumentsSeen)
	assert.Equal(t, 1, hold.DocumentsSkipped, "undated holdings document is skipped")

	assert.Equal(t, []models.HoldingRow{
		{Postcode: 2000, BondsHeld: 1500, Date: "2023-06-01"},
		{Postcode: 2010, BondsHeld: 700, Date: "2023-06-01"},
	}, readCSV[models.HoldingRow](t, h.writer, DatasetHoldings))

	assert.Equal(t, []models.MedianRentRow{
		{Date: "2023-01-01", Postcode: 0, MedianRent: 500, DataPoints: 2},
		{Date: "2023-01-01", Postcode: 2000, MedianRent: 500, DataPoints: 2},
		{Date: "2023-02-01", Postcode: 0, MedianRent: 550, DataPoints: 1},
		{Date: "2023-02-01", Postcode: 2010, MedianRent: 550, DataPoints: 1},
	}, readCSV[models.MedianRentRow](t, h.writer, DatasetMedianRents))

	assert.Len(t, readCSV[models.BedroomMedianRentRow](t, h.writer, DatasetMedianRentsByBeds), 6)

	assert.Equal(t, []models.RefundTotalRow{
		{Postcode: 2000, TenantPayment: 1000, AgentPayment: 1000},
		{Postcode: 2010, TenantPayment: 0, AgentPayment: 0},
	}, readCSV[models.RefundTotalRow](t, h.writer, DatasetRefundTotals))

	assert.Equal(t, []models.RefundPortionRow{
		{Postcode: 2000, Recipient: models.RecipientTenant, BinCount: 1},
		{Postcode: 2000, Recipient: models.RecipientLandlord, BinCount: 1},
	}, readCSV[models.RefundPortionRow](t, h.writer, DatasetRefundPortions))

	lodgements := readCSV[models.LodgementRow](t, h.writer, DatasetLodgementsNormal)
	require.Len(t, lodgements, 3)
	assert.Equal(t, models.LodgementRow{DateLodged: "2023-01-03", Postcode: 2000, DwellingType: "F", NumBedrooms: 1, WeeklyRent: 400}, lodgements[0])
	assert.Len(t, readCSV[models.RefundRow](t, h.writer, DatasetRefundsNormal), 3)

	// Every readable document is recorded; only holdings carry a period.
	require.Len(t, versions.versions, 4)
	for _, v := range versions.versions {
		assert.Len(t, v.DataHash, 64)
		assert.NotEmpty(t, v.LocalKey)
		assert.Equal(t, v.Category == config.CategoryHoldings, v.Period != nil, v.SourceURL)
	}
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	fs := newFakeSource(t)
	h := newHarness(t, fs, nil)

	_, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	first := readCSV[models.BedroomMedianRentRow](t, h.writer, DatasetMedianRentsByBeds)
	firstPortions, err := output.ReadParquet[models.RefundPortionRow](h.writer.Path(DatasetRefundPortions, output.ParquetExt))
	require.NoError(t, err)

	summary, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	for _, cs := range summary.Categories {
		assert.Equal(t, cs.DocumentsSeen, cs.DocumentsCached, "warm cache serves %s", cs.Category)
	}

	for name := range fs.docs {
		assert.LessOrEqual(t, fs.downloadCount(name), 1, "%s downloaded once", name)
	}
	assert.Equal(t, first, readCSV[models.BedroomMedianRentRow](t, h.writer, DatasetMedianRentsByBeds))
	secondPortions, err := output.ReadParquet[models.RefundPortionRow](h.writer.Path(DatasetRefundPortions, output.ParquetExt))
	require.NoError(t, err)
	assert.Equal(t, firstPortions, secondPortions)
}

func TestPipeline_RestartUsesCacheLog(t *testing.T) {
	fs := newFakeSource(t)
	h := newHarness(t, fs, nil)
	_, err := h.pipeline.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.cache.Close())

	again := newHarnessWithConfig(t, h.cfg, nil)
	_, err = again.pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fs.downloadCount("holdings-june-2023.xlsx"))
}

func TestPipeline_TransportErrorAbortsCategoryOnly(t *testing.T) {
	fs := newFakeSource(t)
	fs.listing = strings.Replace(fs.listing, "refunds-march-2023.xlsx", "refunds-missing.xlsx", 1)
	h := newHarness(t, fs, nil)

	summary, err := h.pipeline.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperror.IsTransport(err))
	assert.Contains(t, err.Error(), "category refunds")

	require.Len(t, summary.Categories, 3)
	for _, cs := range summary.Categories {
		if cs.Category == config.CategoryRefunds {
			assert.NotEmpty(t, cs.Error)
			assert.Empty(t, cs.Datasets)
			continue
		}
		assert.Empty(t, cs.Error)
		assert.NotEmpty(t, cs.Datasets)
	}
	assert.NoFileExists(t, h.writer.Path(DatasetRefundTotals, output.CSVExt))
	assert.FileExists(t, h.writer.Path(DatasetMedianRents, output.ParquetExt))
}

func TestPipeline_RunCategory(t *testing.T) {
	fs := newFakeSource(t)
	h := newHarness(t, fs, nil)

	cs, err := h.pipeline.RunCategory(context.Background(), config.CategoryHoldings)
	require.NoError(t, err)
	assert.Equal(t, []string{DatasetHoldings}, cs.Datasets)
	assert.NoFileExists(t, h.writer.Path(DatasetMedianRents, output.CSVExt))

	_, err = h.pipeline.RunCategory(context.Background(), "parking")
	assert.Error(t, err)
}

func TestIngester_TagsRowsWithProvenance(t *testing.T) {
	fs := newFakeSource(t)
	h := newHarness(t, fs, nil)
	ingester := h.pipeline.ingester

	batch, err := ingester.IngestCategory(context.Background(), config.CategoryHoldings)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	for _, row := range batch.Rows {
		assert.Equal(t, fs.srv.URL+docPath+"holdings-june-2023.xlsx", row.SourceURL)
		assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), row.Period)
	}

	res := normalize.Table(batch.Rows, normalize.Holding)
	assert.Zero(t, res.Dropped)
	assert.Equal(t, 700, res.Records[0].BondsHeld, "rows keep document order")
}

func TestIngester_CancelledContext(t *testing.T) {
	fs := newFakeSource(t)
	h := newHarness(t, fs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.pipeline.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
