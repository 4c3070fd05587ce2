// output/writer.go
package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gewnthar/bondstats/apperror"
	"github.com/gewnthar/bondstats/config"
	"github.com/jszwec/csvutil"
	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"
)

const (
	CSVExt     = ".csv"
	ParquetExt = ".parquet"
)

// Writer writes each derived table as a CSV file and a Parquet file with the
// same rows and columns.
type Writer struct {
	dir         string
	compression parquet.WriterOption
	logger      zerolog.Logger
}

func NewWriter(cfg config.OutputConfig, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, apperror.NewStorageError("mkdir", cfg.Dir, err)
	}
	return &Writer{
		dir:         cfg.Dir,
		compression: compressionOption(cfg.Compression),
		logger:      logger.With().Str("component", "OutputWriter").Logger(),
	}, nil
}

func compressionOption(codec string) parquet.WriterOption {
	switch strings.ToLower(codec) {
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "none":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Zstd)
	}
}

func (w *Writer) Dir() string { return w.dir }

// Path is where the artifact of table name with extension ext lives.
func (w *Writer) Path(name, ext string) string {
	return filepath.Join(w.dir, name+ext)
}

// WriteTable replaces <name>.csv and <name>.parquet with rows. Both files are
// staged next to their targets and renamed only once both are complete; on
// failure the previous pair is left as it was.
func WriteTable[T any](w *Writer, name string, rows []T) error {
	csvTmp, err := stage(w.dir, name+CSVExt, func(f *os.File) error { return encodeCSV(f, rows) })
	if err != nil {
		return err
	}
	parquetTmp, err := stage(w.dir, name+ParquetExt, func(f *os.File) error { return encodeParquet(f, rows, w.compression) })
	if err != nil {
		os.Remove(csvTmp)
		return err
	}

	if err := os.Rename(csvTmp, w.Path(name, CSVExt)); err != nil {
		os.Remove(csvTmp)
		os.Remove(parquetTmp)
		return apperror.NewStorageError("rename", w.Path(name, CSVExt), err)
	}
	if err := os.Rename(parquetTmp, w.Path(name, ParquetExt)); err != nil {
		os.Remove(parquetTmp)
		return apperror.NewStorageError("rename", w.Path(name, ParquetExt), err)
	}

	w.logger.Info().Str("table", name).Int("rows", len(rows)).Msg("Wrote table")
	return nil
}

// stage writes a temp file in dir with encode and returns its path. The temp
// file is removed if anything fails.
func stage(dir, target string, encode func(*os.File) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+target+".*.tmp")
	if err != nil {
		return "", apperror.NewStorageError("create", filepath.Join(dir, target), err)
	}
	tmp := f.Name()

	if err := encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", apperror.NewStorageError("encode", filepath.Join(dir, target), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", apperror.NewStorageError("sync", filepath.Join(dir, target), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", apperror.NewStorageError("close", filepath.Join(dir, target), err)
	}
	return tmp, nil
}

// encodeCSV writes a header from the csv tags of T, then one record per row.
// An empty table still gets its header.
func encodeCSV[T any](out io.Writer, rows []T) error {
	cw := csv.NewWriter(out)
	enc := csvutil.NewEncoder(cw)
	var zero T
	if err := enc.EncodeHeader(zero); err != nil {
		return fmt.Errorf("failed to encode CSV header: %w", err)
	}
	if len(rows) > 0 {
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode CSV rows: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeParquet[T any](out io.Writer, rows []T, compression parquet.WriterOption) error {
	writer := parquet.NewGenericWriter[T](out, compression)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadCSV decodes a table written by WriteTable.
func ReadCSV[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.NewStorageError("open", path, err)
	}
	defer f.Close()

	rows := []T{}
	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if errors.Is(err, io.EOF) {
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV decoder for %s: %w", path, err)
	}
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return rows, nil
}

// ReadParquet decodes a table written by WriteTable.
func ReadParquet[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperror.NewStorageError("open", path, err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[T](f)
	defer reader.Close()

	rows := make([]T, 0, reader.NumRows())
	batch := make([]T, 100)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rows from %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}
