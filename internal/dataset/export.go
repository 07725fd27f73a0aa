package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/lascloud/pkg/batch"
)

// ErrNameCollision is returned when two input files would write the same
// batch files.
var ErrNameCollision = errors.New("output name collision")

// BatchFileName returns the PCD file name for batch index of a file whose
// output stem is stem, e.g. tile_003.pcd.
func BatchFileName(stem string, index int) string {
	return fmt.Sprintf("%s_%03d.pcd", stem, index)
}

// OutputStems assigns every file a distinct output stem. A file keeps its
// base name without extension unless another file shares it; those files
// use their path relative to the common directory of all files, with
// separators turned into '-'. Comparison ignores case.
func OutputStems(files []string) (map[string]string, error) {
	byBase := make(map[string]int)
	for _, f := range files {
		byBase[strings.ToLower(stemOf(filepath.Base(f)))]++
	}

	root := commonDir(files)
	stems := make(map[string]string, len(files))
	owner := make(map[string]string, len(files))
	for _, f := range files {
		stem := stemOf(filepath.Base(f))
		if byBase[strings.ToLower(stem)] > 1 {
			rel, err := filepath.Rel(root, f)
			if err != nil {
				rel = f
			}
			stem = strings.ReplaceAll(filepath.ToSlash(stemOf(rel)), "/", "-")
		}

		key := strings.ToLower(stem)
		if prev, ok := owner[key]; ok && prev != f {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrNameCollision, prev, f, stem)
		}
		owner[key] = f
		stems[f] = stem
	}
	return stems, nil
}

func stemOf(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// commonDir returns the deepest directory containing every path.
func commonDir(paths []string) string {
	if len(paths) == 0 {
		return "."
	}
	root := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		dir := filepath.Dir(p)
		for !within(dir, root) {
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}
	return root
}

func within(dir, root string) bool {
	rel, err := filepath.Rel(root, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// PCDSink returns a Sink writing every batch of files as a PCD file under
// dir. Each file gets its own names from OutputStems.
func PCDSink(dir string, files []string) (Sink, error) {
	stems, err := OutputStems(files)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return func(path string, index int, b batch.Batch) error {
		stem, ok := stems[path]
		if !ok {
			return fmt.Errorf("no output name for %s", path)
		}
		out := filepath.Join(dir, BatchFileName(stem, index))
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := b.WritePCD(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", out, err)
		}
		return f.Close()
	}, nil
}
