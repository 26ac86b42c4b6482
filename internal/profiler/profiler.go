package profiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/profview/profview/internal/report"
)

// Dataset supplies the rows of one tabular source.
type Dataset interface {
	Name() string
	Type() string
	Columns() []string
	Next() ([]string, error)
}

// Options tune a profiling pass. Zero values select the defaults.
type Options struct {
	// SampleSize caps how many rows feed the per-column statistics.
	// Zero or negative profiles every row.
	SampleSize int
	// ChunkSize sets the shuffle batch for row sampling.
	ChunkSize int
	// Workers caps concurrent column profiles.
	Workers int
	// Seed pins the sampler for reproducible runs. Zero picks a
	// random seed.
	Seed uint64
	// QuantileGroups is the number of quantile bins per numeric
	// column.
	QuantileGroups int
	// HistogramBins fixes the histogram width. Zero or negative
	// selects the Sturges count.
	HistogramBins int
}

type Profiler struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options, log *slog.Logger) *Profiler {
	if log == nil {
		log = slog.Default()
	}
	return &Profiler{opts: opts, log: log}
}

// Profile reads ds to the end and builds its report: global_stats,
// one data_stats record per column, and the name-to-index
// profile_schema.
func (p *Profiler) Profile(ctx context.Context, ds Dataset) (*report.Map, error) {
	start := time.Now()
	columns := ds.Columns()

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := ds.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ds.Name(), err)
		}
		rows = append(rows, row)
	}

	drawn := sampleIndices(len(rows), p.opts.SampleSize, p.opts.ChunkSize, p.opts.Seed)
	sampled := append([]int(nil), drawn...)
	sort.Ints(sampled)

	cell := func(row, col int) string {
		if col < len(rows[row]) {
			return rows[row][col]
		}
		return ""
	}

	records := make([]report.Value, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize(p.opts.Workers))
	for j, name := range columns {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values := make([]string, len(sampled))
			for i, row := range sampled {
				values[i] = cell(row, j)
			}
			samples := make([]string, 0, maxSamples)
			for _, row := range drawn {
				if len(samples) == maxSamples {
					break
				}
				if _, isNull := nullSpelling(cell(row, j)); !isNull {
					samples = append(samples, cell(row, j))
				}
			}
			records[j] = p.profileColumn(name, values, sampled, samples)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	schema := report.NewMap()
	for j, name := range columns {
		indices := report.Seq{}
		if existing, ok := schema.Get(name); ok {
			indices = append(indices, existing.(report.Seq)...)
		}
		schema.Set(name, append(indices, report.Int(j)))
	}

	nullRows := 0
	for _, row := range sampled {
		for j := range columns {
			if _, isNull := nullSpelling(cell(row, j)); isNull {
				nullRows++
				break
			}
		}
	}
	nullRatio := 0.0
	if len(sampled) > 0 {
		nullRatio = float64(nullRows) / float64(len(sampled))
	}

	global := report.NewMap().
		Set("samples_used", report.Int(len(sampled))).
		Set("column_count", report.Int(len(columns))).
		Set("row_count", report.Int(len(rows))).
		Set("row_has_null_ratio", report.Float(nullRatio)).
		Set("duplicate_row_count", report.Int(duplicateRows(rows))).
		Set("file_type", report.String(ds.Type())).
		Set("encoding", report.String("utf-8")).
		Set("profile_schema", schema).
		Set("times", report.NewMap().
			Set("row_stats", report.Float(time.Since(start).Seconds())))

	return report.NewMap().
		Set("global_stats", global).
		Set("data_stats", report.Seq(records)), nil
}

// Update re-profiles ds and lays the fresh result over previous, so
// keys the new pass does not produce survive from the old report.
func (p *Profiler) Update(ctx context.Context, previous *report.Map, ds Dataset) (*report.Map, error) {
	next, err := p.Profile(ctx, ds)
	if err != nil {
		return nil, err
	}
	return report.Merge(previous, next), nil
}

func duplicateRows(rows [][]string) int {
	seen := make(map[string]struct{}, len(rows))
	dups := 0
	for _, row := range rows {
		key := ""
		for _, v := range row {
			key += v + "\x1f"
		}
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}
