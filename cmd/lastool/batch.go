package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lascloud/internal/catalog"
	"github.com/Faultbox/lascloud/internal/config"
	"github.com/Faultbox/lascloud/internal/dataset"
	"github.com/Faultbox/lascloud/internal/logger"
)

// inputFiles resolves the positional paths, or the configured ones.
func inputFiles(fsArgs []string, cfg *config.Config) ([]string, error) {
	paths := fsArgs
	if len(paths) == 0 {
		paths = cfg.Dataset.Paths
	}
	if len(paths) == 0 {
		return nil, errors.New("no input paths given")
	}
	return dataset.Discover(paths)
}

func cmdBatch(args []string, w io.Writer) error {
	c := newCommand("batch")
	cfg, err := c.load(args)
	if err != nil {
		return err
	}
	files, err := inputFiles(c.fs.Args(), cfg)
	if err != nil {
		return err
	}

	loader, err := dataset.New(dataset.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}
	sink, err := dataset.PCDSink(cfg.Export.OutputDir, files)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := loader.Load(ctx, files, sink)
	printResults(w, results)
	if err != nil {
		return err
	}

	var failed int
	for i := range results {
		if !results[i].OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	logger.Info("batches written", zap.Int("files", len(results)), zap.String("dir", cfg.Export.OutputDir))
	fmt.Fprintf(w, "\nBatches written to %s\n", cfg.Export.OutputDir)
	return nil
}

func printResults(w io.Writer, results []dataset.FileResult) {
	fmt.Fprintf(w, "%-40s %10s %8s  %s\n", "FILE", "POINTS", "BATCHES", "STATUS")
	for _, r := range results {
		status := "ok"
		switch {
		case r.Err != nil:
			status = r.Err.Error()
		case r.Truncated:
			status = fmt.Sprintf("truncated (%d declared)", r.Header.NumberOfPointRecords)
		}
		fmt.Fprintf(w, "%-40s %10d %8d  %s\n", filepath.Base(r.Path), r.Points, r.Batches, status)
	}
}

func cmdScan(args []string, w io.Writer) error {
	c := newCommand("scan")
	cfg, err := c.load(args)
	if err != nil {
		return err
	}
	files, err := inputFiles(c.fs.Args(), cfg)
	if err != nil {
		return err
	}

	loader, err := dataset.New(dataset.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewStore(db)

	root := strings.Join(c.fs.Args(), ",")
	if root == "" {
		root = strings.Join(cfg.Dataset.Paths, ",")
	}
	scan := &catalog.Scan{Root: root, BatchLimit: cfg.Dataset.BatchLimit}
	if err := store.InsertScan(scan); err != nil {
		return err
	}
	log := logger.Named("scan").With(zap.String("scan_id", scan.ScanID))
	log.Info("scan started", zap.Int("files", len(files)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, loadErr := loader.Load(ctx, files, nil)
	if results != nil {
		if err := store.RecordResults(scan.ScanID, results); err != nil {
			return err
		}
	}
	origin, _ := loader.Origin().Get()
	if err := store.FinishScan(scan.ScanID, loader.Origin().Source(), origin); err != nil {
		return err
	}
	log.Info("scan finished", zap.Duration("took", time.Since(start)))

	printResults(w, results)
	fmt.Fprintf(w, "\nScan %s recorded in %s\n", scan.ScanID, cfg.Catalog.Path)
	return loadErr
}

func cmdScans(args []string, w io.Writer) error {
	c := newCommand("scans")
	cfg, err := c.load(args)
	if err != nil {
		return err
	}

	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	store := catalog.NewStore(db)

	if c.fs.NArg() > 0 {
		return printScanFiles(w, store, c.fs.Arg(0))
	}

	scans, err := store.ListScans()
	if err != nil {
		return err
	}
	for _, s := range scans {
		started := time.Unix(0, s.StartedAtNs).Format(time.DateTime)
		fmt.Fprintf(w, "%s  %s  limit=%d  origin=%v  %s\n", s.ScanID, started, s.BatchLimit, s.Origin, s.Root)
	}
	fmt.Fprintf(w, "(%d scans)\n", len(scans))
	return nil
}

func printScanFiles(w io.Writer, store *catalog.Store, scanID string) error {
	scan, err := store.GetScan(scanID)
	if err != nil {
		return err
	}
	recs, err := store.ListFiles(scanID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Scan:      %s\n", scan.ScanID)
	fmt.Fprintf(w, "Root:      %s\n", scan.Root)
	fmt.Fprintf(w, "Reference: %s\n", scan.Reference)
	fmt.Fprintf(w, "Origin:    %v\n\n", scan.Origin)
	for _, r := range recs {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		} else if r.Truncated {
			status = "truncated"
		}
		mean := "-"
		if r.IntensityMean != nil {
			mean = fmt.Sprintf("%.1f", *r.IntensityMean)
		}
		fmt.Fprintf(w, "%-40s %10d %8d %8s  %s\n", filepath.Base(r.Path), r.DecodedPoints, r.Batches, mean, status)
	}
	return nil
}

func cmdConfig(args []string, w io.Writer) error {
	if len(args) < 1 || args[0] != "init" {
		return errors.New("usage: lastool config init [path]")
	}

	cfg := config.Default()
	if len(args) > 1 {
		if err := cfg.SaveTo(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(w, "Wrote %s\n", args[1])
		return nil
	}

	path, err := cfg.Save()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}
