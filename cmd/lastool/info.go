package main

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/lascloud/internal/logger"
	"github.com/Faultbox/lascloud/pkg/las"
)

func cmdInfo(args []string, w io.Writer) error {
	c := newCommand("info")
	if _, err := c.load(args); err != nil {
		return err
	}
	if c.fs.NArg() < 1 {
		return errors.New("usage: lastool info <file.las>")
	}
	path := c.fs.Arg(0)

	h, err := las.ReadHeaderFile(path)
	if err != nil {
		return err
	}
	printHeader(w, path, h)

	if !h.PointDataFormatID.Supported() {
		fmt.Fprintf(w, "\nPoints not decoded: %v\n", las.ErrUnsupportedFormat)
		return nil
	}

	r, err := las.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	points, err := r.ReadAll()
	if r.Truncated() {
		logger.Warn("file ends before the declared point count",
			zap.String("path", path),
			zap.Uint32("declared", h.NumberOfPointRecords),
			zap.Int("decoded", len(points)))
	}
	fmt.Fprintln(w)
	printPointStats(w, points, r.Truncated())
	return err
}

func printHeader(w io.Writer, path string, h *las.Header) {
	fmt.Fprintf(w, "File:       %s\n", path)
	fmt.Fprintf(w, "Version:    %s\n", h.Version)
	fmt.Fprintf(w, "System:     %s\n", h.SystemID())
	fmt.Fprintf(w, "Software:   %s\n", h.Software())
	if created, ok := h.CreationDate(); ok {
		fmt.Fprintf(w, "Created:    %s\n", created.Format("2006-01-02"))
	} else {
		fmt.Fprintln(w, "Created:    unknown")
	}
	fmt.Fprintf(w, "Project:    %s\n", h.ProjectID)
	fmt.Fprintf(w, "Source ID:  %d\n", h.SourceID)
	fmt.Fprintf(w, "Format:     %s (%d bytes/record, header says %d)\n",
		h.PointDataFormatID, h.RecordLength(), h.PointDataRecordLength)
	fmt.Fprintf(w, "VLRs:       %d (point data at byte %d)\n",
		h.NumberOfVariableLengthRecords, h.OffsetToPointData)
	fmt.Fprintf(w, "Points:     %d\n", h.NumberOfPointRecords)
	fmt.Fprintf(w, "By return:  %v\n", h.NumberOfPointsByReturn)
	fmt.Fprintf(w, "Scale:      %g %g %g\n", h.ScaleX, h.ScaleY, h.ScaleZ)
	fmt.Fprintf(w, "Offset:     %g %g %g\n", h.OffsetX, h.OffsetY, h.OffsetZ)
	fmt.Fprintf(w, "Min:        %.3f %.3f %.3f\n", h.MinX, h.MinY, h.MinZ)
	fmt.Fprintf(w, "Max:        %.3f %.3f %.3f\n", h.MaxX, h.MaxY, h.MaxZ)
	c := h.Center()
	fmt.Fprintf(w, "Center:     %.3f %.3f %.3f\n", c[0], c[1], c[2])
}

func printPointStats(w io.Writer, points []las.Point, truncated bool) {
	fmt.Fprintf(w, "Decoded:    %d", len(points))
	if truncated {
		fmt.Fprint(w, " (file ends before the declared count)")
	}
	fmt.Fprintln(w)
	if len(points) == 0 {
		return
	}

	intensity := make([]float64, len(points))
	classes := make(map[uint8]int)
	var edges int
	for i := range points {
		intensity[i] = float64(points[i].Intensity)
		classes[points[i].Classification]++
		if points[i].Flags.EdgeOfFlightLine() {
			edges++
		}
	}

	mean, std := stat.MeanStdDev(intensity, nil)
	if len(intensity) == 1 {
		std = 0
	}
	fmt.Fprintf(w, "Intensity:  min %.0f  max %.0f  mean %.2f  stddev %.2f\n",
		floats.Min(intensity), floats.Max(intensity), mean, std)
	fmt.Fprintf(w, "Edge pts:   %d\n", edges)

	fmt.Fprintln(w, "Classes:")
	ids := make([]int, 0, len(classes))
	for id := range classes {
		ids = append(ids, int(id))
	}
	slices.Sort(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %-4d %d\n", id, classes[uint8(id)])
	}
}

func cmdPoints(args []string, w io.Writer) error {
	c := newCommand("points")
	limit := c.fs.Int("n", 10, "Number of points to print (0 = all)")
	if _, err := c.load(args); err != nil {
		return err
	}
	if c.fs.NArg() < 1 {
		return errors.New("usage: lastool points [-n N] <file.las>")
	}

	r, err := las.Open(c.fs.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintln(w, "#\tx\ty\tz\tintensity\treturn\tclass\tgps_time")
	for i := 0; *limit <= 0 || i < *limit; i++ {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		gps := "-"
		if t, ok := p.Time(); ok {
			gps = fmt.Sprintf("%.6f", t)
		}
		fmt.Fprintf(w, "%d\t%.3f\t%.3f\t%.3f\t%d\t%d/%d\t%d\t%s\n",
			i, p.X, p.Y, p.Z, p.Intensity,
			p.Flags.ReturnNumber(), p.Flags.NumberOfReturns(),
			p.Classification, gps)
	}
	return nil
}
