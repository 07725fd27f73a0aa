// Package dataset decodes a set of LAS files into render batches sharing a
// single re-centering origin.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/lascloud/internal/config"
	"github.com/Faultbox/lascloud/internal/logger"
	"github.com/Faultbox/lascloud/pkg/batch"
	"github.com/Faultbox/lascloud/pkg/las"
)

// ErrNoFiles is returned when discovery finds no LAS files.
var ErrNoFiles = errors.New("no LAS files found")

// Options controls how files are decoded and batched.
type Options struct {
	Limit     int
	Scale     float32
	SwapYZ    bool
	Reference string // origin source; empty means the first file that parses
	Workers   int
	Logger    *zap.Logger
}

// OptionsFromConfig copies the dataset section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Limit:     cfg.Dataset.BatchLimit,
		Scale:     cfg.Dataset.Scale,
		SwapYZ:    cfg.Dataset.SwapYZ,
		Reference: cfg.Dataset.Reference,
		Workers:   cfg.Dataset.Workers,
	}
}

// IntensityStats summarizes the intensities of one file.
type IntensityStats struct {
	Mean   float64
	StdDev float64
}

// FileResult is the outcome of decoding one file. Err is set when the file
// failed; Points and Batches count only what reached the sink before that.
// Intensity covers every point decoded, emitted or not.
type FileResult struct {
	Path      string
	Header    *las.Header
	Points    int
	Batches   int
	Truncated bool
	Intensity IntensityStats
	Duration  time.Duration
	Err       error
}

// OK reports whether the file decoded without error.
func (r *FileResult) OK() bool {
	return r.Err == nil
}

// Sink receives every batch of a file, in order. Calls for different files
// may run concurrently.
type Sink func(path string, index int, b batch.Batch) error

// Loader decodes files into batches.
type Loader struct {
	opts   Options
	origin *batch.Origin
	log    *zap.Logger
}

// New returns a Loader for opts.
func New(opts Options) (*Loader, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("%w: %d", batch.ErrInvalidLimit, opts.Limit)
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("dataset")
	}
	return &Loader{
		opts:   opts,
		origin: batch.NewOrigin(opts.Scale, opts.SwapYZ),
		log:    log,
	}, nil
}

// Origin returns the dataset origin guard.
func (l *Loader) Origin() *batch.Origin {
	return l.origin
}

// Discover expands paths into a sorted, de-duplicated list of LAS files.
// Directories are walked recursively.
func Discover(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isLAS(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
	}

	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	slices.Sort(files)
	return files, nil
}

func isLAS(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".las")
}

// ResolveOrigin sets the dataset origin. A configured reference file must
// parse and hold a decodable point format; otherwise the first of files
// that qualifies is used. If none does, the origin stays unset and points
// are not re-centered.
func (l *Loader) ResolveOrigin(files []string) error {
	if l.opts.Reference != "" {
		h, err := readReference(l.opts.Reference)
		if err != nil {
			return fmt.Errorf("reference %s: %w", l.opts.Reference, err)
		}
		l.setOrigin(l.opts.Reference, h)
		return nil
	}

	for _, f := range files {
		h, err := readReference(f)
		if err != nil {
			l.log.Debug("skipping reference candidate", zap.String("file", f), zap.Error(err))
			continue
		}
		l.setOrigin(f, h)
		return nil
	}

	l.log.Warn("no header parsed, origin left at zero", zap.Int("files", len(files)))
	return nil
}

func readReference(path string) (*las.Header, error) {
	h, err := las.ReadHeaderFile(path)
	if err != nil {
		return nil, err
	}
	if !h.PointDataFormatID.Supported() {
		return nil, fmt.Errorf("%w: %s", las.ErrUnsupportedFormat, h.PointDataFormatID)
	}
	return h, nil
}

func (l *Loader) setOrigin(source string, h *las.Header) {
	v, set := l.origin.Resolve(source, h)
	if set {
		l.log.Info("origin resolved",
			zap.String("reference", source),
			zap.Float32s("origin", v[:]),
		)
	}
}

// Load decodes files in parallel and hands their batches to sink, which may
// be nil. The origin is resolved first if it is not already set.
//
// A failing file never stops the others; its error is recorded in its
// FileResult. The returned error is non-nil only when ctx is canceled.
func (l *Loader) Load(ctx context.Context, files []string, sink Sink) ([]FileResult, error) {
	if _, ok := l.origin.Get(); !ok {
		if err := l.ResolveOrigin(files); err != nil {
			return nil, err
		}
	}

	tf := l.origin.Transform()
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FileResult{Path: path, Err: err}
				return err
			}
			results[i] = l.loadFile(gctx, path, tf, sink)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	var failed int
	for i := range results {
		if !results[i].OK() {
			failed++
		}
	}
	l.log.Info("dataset loaded", zap.Int("files", len(files)), zap.Int("failed", failed))
	return results, err
}

func (l *Loader) loadFile(ctx context.Context, path string, tf batch.Transform, sink Sink) FileResult {
	start := time.Now()
	res := FileResult{Path: path}

	r, err := las.Open(path)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		l.log.Warn("file rejected", zap.String("file", path), zap.Error(err))
		return res
	}
	defer r.Close()
	res.Header = r.Header()

	src := &intensityTap{src: r}
	emit := func(b batch.Batch) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sink != nil {
			if err := sink(path, res.Batches, b); err != nil {
				return fmt.Errorf("batch %d: %w", res.Batches, err)
			}
		}
		res.Batches++
		res.Points += b.Len()
		return nil
	}

	_, res.Err = batch.PartitionStream(src, l.opts.Limit, tf, TagColor(path), emit)
	res.Truncated = r.Truncated()
	res.Intensity = intensityStats(src.values)
	res.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("file", path),
		zap.Int("points", res.Points),
		zap.Int("batches", res.Batches),
		zap.Duration("took", res.Duration),
	}
	switch {
	case res.Err != nil:
		l.log.Warn("file decode failed", append(fields, zap.Error(res.Err))...)
	case res.Truncated:
		l.log.Warn("file shorter than declared", append(fields,
			zap.Uint32("declared", res.Header.NumberOfPointRecords))...)
	default:
		l.log.Debug("file decoded", fields...)
	}
	return res
}

// intensityTap records intensities while passing points through.
type intensityTap struct {
	src    batch.PointSource
	values []float64
}

func (t *intensityTap) Next() (las.Point, error) {
	p, err := t.src.Next()
	if err == nil {
		t.values = append(t.values, float64(p.Intensity))
	}
	return p, err
}

func intensityStats(values []float64) IntensityStats {
	switch len(values) {
	case 0:
		return IntensityStats{}
	case 1:
		return IntensityStats{Mean: values[0]}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return IntensityStats{Mean: mean, StdDev: std}
}

// TagColor returns the color every point of the file at path is tagged with.
// It depends only on the file name, so a file keeps its color across runs.
func TagColor(path string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(filepath.Base(path)))
	v := h.Sum32()
	// Keep each channel in the upper half so no tag is close to black.
	return color.RGBA{
		R: uint8(v>>16) | 0x80,
		G: uint8(v>>8) | 0x80,
		B: uint8(v) | 0x80,
		A: 0xff,
	}
}
