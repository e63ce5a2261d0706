package census

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gridscout/gridscout/internal/fetcher"
)

// Sink receives parsed records in batches. The store implements this.
type Sink interface {
	InsertRecords(ctx context.Context, recs []Record) error
}

// Loader streams the census CSV into a Sink.
type Loader struct {
	// Encoding of the source file, see fetcher.DecodeReader.
	Encoding string
	// Delimiter defaults to ';', the census grid format.
	Delimiter rune
	// BatchSize controls how many records each sink call receives.
	BatchSize int
}

// Summary reports what a Load pass saw.
type Summary struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
}

const defaultBatchSize = 5000

// Load parses every row of r and feeds it to sink in batches. Rows that fail
// to parse are skipped and counted, a handful of malformed rows should not
// abort a multi-gigabyte import.
func (l *Loader) Load(ctx context.Context, r io.Reader, sink Sink) (*Summary, error) {
	delim := l.Delimiter
	if delim == 0 {
		delim = ';'
	}
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter: delim,
		HasHeader: true,
		HeaderCh:  headerCh,
		Encoding:  l.Encoding,
		TrimSpace: true,
	})

	var header *Header
	select {
	case cols, ok := <-headerCh:
		if !ok {
			return nil, eris.New("census: empty input")
		}
		var err error
		header, err = ParseHeader(cols)
		if err != nil {
			return nil, err
		}
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return nil, eris.New("census: empty input")
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "census: load cancelled")
	}

	recCh := make(chan Record, 256)
	summary := &Summary{}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(recCh)
		for row := range rowCh {
			rec, err := header.ParseRow(row)
			if err != nil {
				summary.Skipped++
				zap.L().Warn("skipping malformed census row",
					zap.Int("row", summary.Rows+summary.Skipped),
					zap.Error(err))
				continue
			}
			summary.Rows++
			select {
			case recCh <- rec:
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "census: load cancelled")
			}
		}
		return <-errCh
	})

	g.Go(func() error {
		batch := make([]Record, 0, batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := sink.InsertRecords(ctx, batch); err != nil {
				return eris.Wrap(err, "census: insert batch")
			}
			batch = batch[:0]
			return nil
		}
		for rec := range recCh {
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("census load complete",
		zap.Int("rows", summary.Rows),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}
