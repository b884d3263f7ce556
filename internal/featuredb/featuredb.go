// Package featuredb stores feature finding results in an SQLite database.
// Each run of the program adds one row to RunTable and its features to
// FeatureTable.
package featuredb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/524D/mzfeature/internal/feature"
	"github.com/524D/mzfeature/internal/ms1ft"
	"github.com/carbocation/pfx"
	_ "github.com/mattn/go-sqlite3"
)

const creationDateFormat = "2006-01-02 15:04:05"

// Store is an open feature database
type Store struct {
	db *sql.DB
}

// Run describes one stored run
type Run struct {
	ID           int64
	FileName     string
	Params       string // JSON
	CreationDate string
	Features     int
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS RunTable (
		RunId INTEGER PRIMARY KEY,
		FileName TEXT,
		Params TEXT,
		CreationDate TEXT
	);

	CREATE TABLE IF NOT EXISTS FeatureTable (
		RunId INTEGER REFERENCES RunTable(RunId),
		FeatureId INTEGER,
		MinScan INTEGER,
		MaxScan INTEGER,
		MinCharge INTEGER,
		MaxCharge INTEGER,
		MonoMass DOUBLE,
		RepresentativeScan INTEGER,
		RepresentativeCharge INTEGER,
		RepresentativeMz DOUBLE,
		Abundance DOUBLE,
		ApexScanNum INTEGER,
		ApexIntensity DOUBLE,
		MinElutionTime DOUBLE,
		MaxElutionTime DOUBLE,
		ElutionLength DOUBLE,
		Envelope TEXT,
		LikelihoodRatio DOUBLE,
		PRIMARY KEY (RunId, FeatureId)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// WriteRun stores the features found in fileName together with the
// parameters used, in a single transaction. It returns the id of the run.
func (s *Store) WriteRun(fileName string, params any, features []*feature.Feature) (int64, error) {
	parJSON, err := json.Marshal(params)
	if err != nil {
		return 0, pfx.Err(err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, pfx.Err(err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO RunTable (FileName, Params, CreationDate) VALUES (?, ?, ?)`,
		fileName, string(parJSON), time.Now().Format(creationDateFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, pfx.Err(err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO FeatureTable (
			RunId, FeatureId, MinScan, MaxScan, MinCharge, MaxCharge, MonoMass,
			RepresentativeScan, RepresentativeCharge, RepresentativeMz,
			Abundance, ApexScanNum, ApexIntensity, MinElutionTime,
			MaxElutionTime, ElutionLength, Envelope, LikelihoodRatio
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare feature statement: %w", err)
	}
	defer stmt.Close()
	for _, f := range features {
		r := ms1ft.NewRecord(f)
		_, err := stmt.Exec(runID, r.FeatureID, r.MinScan, r.MaxScan,
			r.MinCharge, r.MaxCharge, r.MonoMass,
			r.RepresentativeScan, r.RepresentativeCharge, r.RepresentativeMz,
			r.Abundance, r.ApexScanNum, r.ApexIntensity, r.MinElutionTime,
			r.MaxElutionTime, r.ElutionLength, r.Envelope, r.LikelihoodRatio)
		if err != nil {
			return 0, fmt.Errorf("failed to insert feature %d: %w", r.FeatureID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, pfx.Err(err)
	}
	return runID, nil
}

// Runs lists the stored runs in insertion order
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.RunId, r.FileName, r.Params, r.CreationDate, COUNT(f.FeatureId)
		FROM RunTable r LEFT JOIN FeatureTable f ON f.RunId = r.RunId
		GROUP BY r.RunId ORDER BY r.RunId`)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.FileName, &r.Params, &r.CreationDate, &r.Features); err != nil {
			return nil, pfx.Err(err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pfx.Err(err)
	}
	return runs, nil
}

// Features returns the features of a run ordered by feature id
func (s *Store) Features(runID int64) ([]ms1ft.Record, error) {
	rows, err := s.db.Query(`
		SELECT FeatureId, MinScan, MaxScan, MinCharge, MaxCharge, MonoMass,
			RepresentativeScan, RepresentativeCharge, RepresentativeMz,
			Abundance, ApexScanNum, ApexIntensity, MinElutionTime,
			MaxElutionTime, ElutionLength, Envelope, LikelihoodRatio
		FROM FeatureTable WHERE RunId = ? ORDER BY FeatureId`, runID)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rows.Close()
	var records []ms1ft.Record
	for rows.Next() {
		var r ms1ft.Record
		err := rows.Scan(&r.FeatureID, &r.MinScan, &r.MaxScan, &r.MinCharge,
			&r.MaxCharge, &r.MonoMass, &r.RepresentativeScan,
			&r.RepresentativeCharge, &r.RepresentativeMz, &r.Abundance,
			&r.ApexScanNum, &r.ApexIntensity, &r.MinElutionTime,
			&r.MaxElutionTime, &r.ElutionLength, &r.Envelope, &r.LikelihoodRatio)
		if err != nil {
			return nil, pfx.Err(err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pfx.Err(err)
	}
	return records, nil
}
