package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Faultbox/lascloud/internal/config"
	"github.com/Faultbox/lascloud/internal/testutil"
	"github.com/Faultbox/lascloud/pkg/batch"
	"github.com/Faultbox/lascloud/pkg/las"
)

// writeDataset creates a.las (10 format-0 points), b.las (25 format-1
// points) and broken.las (bad signature) in a temp dir.
func writeDataset(t *testing.T) (dir string, files []string) {
	t.Helper()
	dir = t.TempDir()

	ha := testutil.NewHeader(las.PointFormat0, 10)
	ha.MinX, ha.MaxX = 0, 2
	ha.MinY, ha.MaxY = 0, 4
	ha.MinZ, ha.MaxZ = 0, 6
	testutil.WriteFile(t, dir, "a.las", ha, testutil.Line(10))

	hb := testutil.NewHeader(las.PointFormat1, 25)
	testutil.WriteFile(t, dir, "b.las", hb, testutil.Line(25))

	hbad := testutil.NewHeader(las.PointFormat0, 3)
	copy(hbad.Signature[:], "XXXX")
	testutil.WriteFile(t, dir, "broken.las", hbad, testutil.Line(3))

	files, err := Discover([]string{dir})
	require.NoError(t, err)
	return dir, files
}

func newLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	if opts.Limit == 0 {
		opts.Limit = 10
	}
	opts.Logger = zap.NewNop()
	l, err := New(opts)
	require.NoError(t, err)
	return l
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	h := testutil.NewHeader(las.PointFormat0, 0)
	testutil.WriteFile(t, dir, "z.las", h, nil)
	testutil.WriteFile(t, dir, "A.LAS", h, nil)
	testutil.WriteFile(t, filepath.Join(dir, "sub"), "m.las", h, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	files, err := Discover([]string{dir, filepath.Join(dir, "z.las")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "A.LAS"),
		filepath.Join(dir, "sub", "m.las"),
		filepath.Join(dir, "z.las"),
	}, files)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover([]string{t.TempDir()})
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = Discover([]string{filepath.Join(t.TempDir(), "missing.las")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNew_InvalidLimit(t *testing.T) {
	_, err := New(Options{Limit: 0})
	assert.ErrorIs(t, err, batch.ErrInvalidLimit)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dataset.SwapYZ = true
	cfg.Dataset.Reference = "ref.las"

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, batch.DefaultLimit, opts.Limit)
	assert.Equal(t, float32(1), opts.Scale)
	assert.True(t, opts.SwapYZ)
	assert.Equal(t, "ref.las", opts.Reference)
	assert.Equal(t, 4, opts.Workers)
}

func TestLoad_BrokenFileDoesNotStopOthers(t *testing.T) {
	_, files := writeDataset(t)
	l := newLoader(t, Options{Workers: 3})

	results, err := l.Load(context.Background(), files, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	a, b, broken := results[0], results[1], results[2]

	assert.True(t, a.OK())
	assert.Equal(t, 10, a.Points)
	assert.Equal(t, 1, a.Batches)
	assert.Equal(t, las.PointFormat0, a.Header.PointDataFormatID)

	assert.True(t, b.OK())
	assert.Equal(t, 25, b.Points)
	assert.Equal(t, 3, b.Batches)

	assert.False(t, broken.OK())
	assert.ErrorIs(t, broken.Err, las.ErrMalformedHeader)
	assert.Nil(t, broken.Header)
	assert.Zero(t, broken.Points)
}

func TestLoad_OriginFromFirstParsedFile(t *testing.T) {
	_, files := writeDataset(t)
	l := newLoader(t, Options{})

	var mu sync.Mutex
	first := make(map[string]mat.Vec3)
	sink := func(path string, index int, b batch.Batch) error {
		mu.Lock()
		defer mu.Unlock()
		if index == 0 {
			first[filepath.Base(path)] = b.Positions[0]
		}
		return nil
	}

	_, err := l.Load(context.Background(), files, sink)
	require.NoError(t, err)

	assert.Equal(t, files[0], l.Origin().Source())
	origin, ok := l.Origin().Get()
	require.True(t, ok)
	assert.Equal(t, mat.Vec3{1, 2, 3}, origin)

	// Both files start at stored (0,0,0) and share the origin of a.las.
	assert.Equal(t, mat.Vec3{-1, -2, -3}, first["a.las"])
	assert.Equal(t, mat.Vec3{-1, -2, -3}, first["b.las"])
}

func TestLoad_ReferenceFile(t *testing.T) {
	dir, files := writeDataset(t)

	l := newLoader(t, Options{Reference: filepath.Join(dir, "b.las")})
	_, err := l.Load(context.Background(), files, nil)
	require.NoError(t, err)
	origin, _ := l.Origin().Get()
	assert.Equal(t, mat.Vec3{}, origin)

	l = newLoader(t, Options{Reference: filepath.Join(dir, "broken.las")})
	_, err = l.Load(context.Background(), files, nil)
	assert.ErrorIs(t, err, las.ErrMalformedHeader)
}

func TestLoad_ReferenceSkipsUnsupportedFormat(t *testing.T) {
	dir, files := writeDataset(t)
	h3 := testutil.NewHeader(las.PointFormat(3), 0)
	h3.MinX, h3.MaxX = 100, 200
	f3 := testutil.WriteFile(t, dir, "0.las", h3, nil)

	l := newLoader(t, Options{})
	results, err := l.Load(context.Background(), append([]string{f3}, files...), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, las.ErrUnsupportedFormat)

	assert.Equal(t, files[0], l.Origin().Source())
	origin, _ := l.Origin().Get()
	assert.Equal(t, mat.Vec3{1, 2, 3}, origin)

	l = newLoader(t, Options{Reference: f3})
	_, err = l.Load(context.Background(), files, nil)
	assert.ErrorIs(t, err, las.ErrUnsupportedFormat)
}

func TestLoad_NoParsableHeader(t *testing.T) {
	dir, _ := writeDataset(t)
	l := newLoader(t, Options{})

	results, err := l.Load(context.Background(), []string{filepath.Join(dir, "broken.las")}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK())
	_, ok := l.Origin().Get()
	assert.False(t, ok)
}

func TestLoad_SinkErrorIsPerFile(t *testing.T) {
	_, files := writeDataset(t)
	l := newLoader(t, Options{})

	errDisk := errors.New("disk full")
	sink := func(path string, index int, b batch.Batch) error {
		if filepath.Base(path) == "b.las" && index == 1 {
			return errDisk
		}
		return nil
	}

	results, err := l.Load(context.Background(), files, sink)
	require.NoError(t, err)
	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, errDisk)
	assert.Equal(t, 1, results[1].Batches)
	// The second batch was decoded but never written.
	assert.Equal(t, 10, results[1].Points)
}

func TestLoad_Canceled(t *testing.T) {
	_, files := writeDataset(t)
	l := newLoader(t, Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := l.Load(ctx, files, nil)
	assert.ErrorIs(t, err, context.Canceled)
	for _, r := range results {
		assert.False(t, r.OK(), r.Path)
	}
}

func TestLoad_Truncated(t *testing.T) {
	dir := t.TempDir()
	h := testutil.NewHeader(las.PointFormat0, 20)
	path := testutil.WriteFile(t, dir, "short.las", h, testutil.Line(12))

	l := newLoader(t, Options{})
	results, err := l.Load(context.Background(), []string{path}, nil)
	require.NoError(t, err)

	r := results[0]
	assert.True(t, r.OK())
	assert.True(t, r.Truncated)
	assert.Equal(t, 12, r.Points)
	assert.Equal(t, 2, r.Batches)
}

func TestLoad_IntensityStats(t *testing.T) {
	dir := t.TempDir()
	h := testutil.NewHeader(las.PointFormat0, 5)
	path := testutil.WriteFile(t, dir, "i.las", h, testutil.Line(5))

	l := newLoader(t, Options{})
	results, err := l.Load(context.Background(), []string{path}, nil)
	require.NoError(t, err)

	// Intensities 0..4: mean 2, sample stddev sqrt(2.5).
	assert.InDelta(t, 2.0, results[0].Intensity.Mean, 1e-9)
	assert.InDelta(t, 1.5811388, results[0].Intensity.StdDev, 1e-6)
}

func TestPCDSink(t *testing.T) {
	dir, files := writeDataset(t)
	out := filepath.Join(dir, "out")

	sink, err := PCDSink(out, files)
	require.NoError(t, err)

	l := newLoader(t, Options{})
	_, err = l.Load(context.Background(), files, sink)
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"a_000.pcd", "b_000.pcd", "b_001.pcd", "b_002.pcd"}, names)

	f, err := os.Open(filepath.Join(out, "b_002.pcd"))
	require.NoError(t, err)
	defer f.Close()
	cloud, err := pc.Unmarshal(f)
	require.NoError(t, err)
	assert.Equal(t, 5, cloud.Points)
}

func TestPCDSink_SameNameInSubdirectories(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"north", "south"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "survey", sub), 0755))
	}
	testutil.WriteFile(t, filepath.Join(dir, "survey", "north"), "tile.las",
		testutil.NewHeader(las.PointFormat0, 5), testutil.Line(5))
	testutil.WriteFile(t, filepath.Join(dir, "survey", "south"), "tile.las",
		testutil.NewHeader(las.PointFormat0, 2), testutil.Line(2))
	testutil.WriteFile(t, filepath.Join(dir, "survey"), "other.las",
		testutil.NewHeader(las.PointFormat0, 1), testutil.Line(1))

	files, err := Discover([]string{filepath.Join(dir, "survey")})
	require.NoError(t, err)

	out := filepath.Join(dir, "out")
	sink, err := PCDSink(out, files)
	require.NoError(t, err)

	l := newLoader(t, Options{Workers: 3})
	results, err := l.Load(context.Background(), files, sink)
	require.NoError(t, err)
	for _, r := range results {
		require.True(t, r.OK(), r.Path)
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"north-tile_000.pcd", "other_000.pcd", "south-tile_000.pcd"}, names)

	for name, want := range map[string]int{"north-tile_000.pcd": 5, "south-tile_000.pcd": 2} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err)
		cloud, err := pc.Unmarshal(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, want, cloud.Points, name)
	}
}

func TestOutputStems(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "distinct bases",
			files: []string{"/d/a.las", "/d/sub/b.las"},
			want:  map[string]string{"/d/a.las": "a", "/d/sub/b.las": "b"},
		},
		{
			name:  "shared base",
			files: []string{"/d/x/tile.las", "/d/y/z/tile.LAS"},
			want:  map[string]string{"/d/x/tile.las": "x-tile", "/d/y/z/tile.LAS": "y-z-tile"},
		},
		{
			name:  "base differs only in case",
			files: []string{"/d/x/Tile.las", "/d/y/tile.las"},
			want:  map[string]string{"/d/x/Tile.las": "x-Tile", "/d/y/tile.las": "y-tile"},
		},
		{
			name:    "renamed stem hits another file",
			files:   []string{"/d/a/tile.las", "/d/b/tile.las", "/d/a-tile.las"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OutputStems(tt.files)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNameCollision)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPCDSink_UnknownFile(t *testing.T) {
	sink, err := PCDSink(t.TempDir(), []string{"/d/a.las"})
	require.NoError(t, err)
	assert.Error(t, sink("/d/b.las", 0, batch.Batch{}))
}

func TestBatchFileName(t *testing.T) {
	assert.Equal(t, "tile_000.pcd", BatchFileName("tile", 0))
	assert.Equal(t, "north-tile.v2_012.pcd", BatchFileName("north-tile.v2", 12))
}

func TestTagColor(t *testing.T) {
	a := TagColor("/x/a.las")
	assert.Equal(t, a, TagColor("/y/a.las"), "color depends on the file name only")
	assert.NotEqual(t, a, TagColor("/x/b.las"))
	assert.Equal(t, uint8(0xff), a.A)
	assert.GreaterOrEqual(t, a.R, uint8(0x80))
}
