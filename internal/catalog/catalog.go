// Package catalog records scan runs and per-file decode results in SQLite.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/lascloud/internal/dataset"
)

const schema = `
CREATE TABLE IF NOT EXISTS las_scans (
	scan_id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	reference TEXT,
	origin_x REAL NOT NULL DEFAULT 0,
	origin_y REAL NOT NULL DEFAULT 0,
	origin_z REAL NOT NULL DEFAULT 0,
	batch_limit INTEGER NOT NULL,
	started_at_ns INTEGER NOT NULL,
	finished_at_ns INTEGER
);

CREATE TABLE IF NOT EXISTS las_files (
	scan_id TEXT NOT NULL,
	path TEXT NOT NULL,
	point_format INTEGER,
	declared_points INTEGER,
	decoded_points INTEGER NOT NULL,
	batches INTEGER NOT NULL,
	truncated INTEGER NOT NULL DEFAULT 0,
	intensity_mean REAL,
	intensity_stddev REAL,
	duration_ns INTEGER NOT NULL,
	error TEXT,
	PRIMARY KEY (scan_id, path),
	FOREIGN KEY (scan_id) REFERENCES las_scans(scan_id) ON DELETE CASCADE
);
`

// Open opens (creating if needed) the catalog database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create catalog schema: %w", err)
	}
	return db, nil
}

// Scan is one run of lastool over a set of files.
type Scan struct {
	ScanID       string
	Root         string
	Reference    string
	Origin       [3]float32
	BatchLimit   int
	StartedAtNs  int64
	FinishedAtNs *int64
}

// FileRecord is the stored outcome of decoding one file.
type FileRecord struct {
	ScanID          string
	Path            string
	PointFormat     *int64
	DeclaredPoints  *int64
	DecodedPoints   int
	Batches         int
	Truncated       bool
	IntensityMean   *float64
	IntensityStdDev *float64
	Duration        time.Duration
	Error           string
}

// FileRecordFromResult converts a dataset result into a record for scanID.
func FileRecordFromResult(scanID string, r *dataset.FileResult) *FileRecord {
	rec := &FileRecord{
		ScanID:        scanID,
		Path:          r.Path,
		DecodedPoints: r.Points,
		Batches:       r.Batches,
		Truncated:     r.Truncated,
		Duration:      r.Duration,
	}
	if r.Header != nil {
		format := int64(r.Header.PointDataFormatID)
		declared := int64(r.Header.NumberOfPointRecords)
		rec.PointFormat = &format
		rec.DeclaredPoints = &declared
	}
	if r.Points > 0 {
		mean, std := r.Intensity.Mean, r.Intensity.StdDev
		rec.IntensityMean = &mean
		rec.IntensityStdDev = &std
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Store provides persistence for scans and their file records.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertScan creates a scan. If scan.ScanID is empty, a new UUID is generated.
func (s *Store) InsertScan(scan *Scan) error {
	if scan.ScanID == "" {
		scan.ScanID = uuid.New().String()
	}
	if scan.StartedAtNs == 0 {
		scan.StartedAtNs = time.Now().UnixNano()
	}

	_, err := s.db.Exec(`
		INSERT INTO las_scans (
			scan_id, root, reference, origin_x, origin_y, origin_z,
			batch_limit, started_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		scan.ScanID,
		scan.Root,
		nullString(scan.Reference),
		float64(scan.Origin[0]), float64(scan.Origin[1]), float64(scan.Origin[2]),
		scan.BatchLimit,
		scan.StartedAtNs,
		nullInt64(scan.FinishedAtNs),
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

// FinishScan stores the origin the scan resolved and marks it finished.
func (s *Store) FinishScan(scanID, reference string, origin [3]float32) error {
	res, err := s.db.Exec(`
		UPDATE las_scans
		SET reference = ?, origin_x = ?, origin_y = ?, origin_z = ?, finished_at_ns = ?
		WHERE scan_id = ?
	`, nullString(reference), float64(origin[0]), float64(origin[1]), float64(origin[2]),
		time.Now().UnixNano(), scanID)
	if err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish scan: %s not found", scanID)
	}
	return nil
}

// GetScan retrieves a scan by ID.
func (s *Store) GetScan(scanID string) (*Scan, error) {
	row := s.db.QueryRow(`
		SELECT scan_id, root, reference, origin_x, origin_y, origin_z,
		       batch_limit, started_at_ns, finished_at_ns
		FROM las_scans WHERE scan_id = ?
	`, scanID)

	scan, err := scanScan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan not found: %s", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return scan, nil
}

// ListScans returns all scans, newest first.
func (s *Store) ListScans() ([]*Scan, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, root, reference, origin_x, origin_y, origin_z,
		       batch_limit, started_at_ns, finished_at_ns
		FROM las_scans
		ORDER BY started_at_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		scan, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scans rows: %w", err)
	}
	return scans, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScan(row rowScanner) (*Scan, error) {
	var scan Scan
	var reference sql.NullString
	var finished sql.NullInt64
	err := row.Scan(
		&scan.ScanID,
		&scan.Root,
		&reference,
		&scan.Origin[0], &scan.Origin[1], &scan.Origin[2],
		&scan.BatchLimit,
		&scan.StartedAtNs,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if reference.Valid {
		scan.Reference = reference.String
	}
	if finished.Valid {
		v := finished.Int64
		scan.FinishedAtNs = &v
	}
	return &scan, nil
}

// InsertFile stores one file record. Re-recording a path within the same
// scan replaces the earlier record.
func (s *Store) InsertFile(rec *FileRecord) error {
	return insertFile(s.db, rec)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertFile(ex execer, rec *FileRecord) error {
	_, err := ex.Exec(`
		INSERT OR REPLACE INTO las_files (
			scan_id, path, point_format, declared_points, decoded_points,
			batches, truncated, intensity_mean, intensity_stddev,
			duration_ns, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ScanID,
		rec.Path,
		nullInt64(rec.PointFormat),
		nullInt64(rec.DeclaredPoints),
		rec.DecodedPoints,
		rec.Batches,
		boolInt(rec.Truncated),
		nullFloat64(rec.IntensityMean),
		nullFloat64(rec.IntensityStdDev),
		rec.Duration.Nanoseconds(),
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", rec.Path, err)
	}
	return nil
}

// RecordResults stores every result of a scan in one transaction.
func (s *Store) RecordResults(scanID string, results []dataset.FileResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for i := range results {
		rec := FileRecordFromResult(scanID, &results[i])
		if err := insertFile(tx, rec); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListFiles returns the file records of a scan ordered by path.
func (s *Store) ListFiles(scanID string) ([]*FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, path, point_format, declared_points, decoded_points,
		       batches, truncated, intensity_mean, intensity_stddev,
		       duration_ns, error
		FROM las_files
		WHERE scan_id = ?
		ORDER BY path
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var recs []*FileRecord
	for rows.Next() {
		var rec FileRecord
		var format, declared sql.NullInt64
		var mean, std sql.NullFloat64
		var durationNs int64
		var errText sql.NullString

		err := rows.Scan(
			&rec.ScanID,
			&rec.Path,
			&format,
			&declared,
			&rec.DecodedPoints,
			&rec.Batches,
			&rec.Truncated,
			&mean,
			&std,
			&durationNs,
			&errText,
		)
		if err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}

		if format.Valid {
			v := format.Int64
			rec.PointFormat = &v
		}
		if declared.Valid {
			v := declared.Int64
			rec.DeclaredPoints = &v
		}
		if mean.Valid {
			v := mean.Float64
			rec.IntensityMean = &v
		}
		if std.Valid {
			v := std.Float64
			rec.IntensityStdDev = &v
		}
		if errText.Valid {
			rec.Error = errText.String
		}
		rec.Duration = time.Duration(durationNs)

		recs = append(recs, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files rows: %w", err)
	}
	return recs, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(i *int64) any {
	if i == nil {
		return nil
	}
	return *i
}

func nullFloat64(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
