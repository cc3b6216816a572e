// Package store archives simulation runs in a sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/fumin/boson"
	"github.com/fumin/boson/config"
)

const (
	tableRuns    = "runs"
	tableSamples = "samples"
)

var (
	ErrNotFound = errors.New("run not found")
)

// Record is an archived run.
type Record struct {
	ID      string
	Created time.Time
	Config  *config.Config

	Success   bool
	Message   string
	NFev      int
	NSteps    int
	NRejected int

	// Times, Occupations and Populations are only filled by Load.
	Times       []float64
	Occupations *mat.Dense
	Populations *mat.Dense
}

// Store is a sqlite database of runs.
type Store struct {
	Path string
	db   *sql.DB
}

// Open opens the database at dbPath, creating it if necessary.
func Open(dbPath string) (*Store, error) {
	db, err := newDB(dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &Store{Path: dbPath, db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save archives the result of running cfg, and returns the id of the new record.
func (s *Store) Save(ctx context.Context, cfg *config.Config, res *boson.Result) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.Wrap(err, "")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "")
	}
	if err := insertRun(ctx, tx, id.String(), cfg, cfgYAML, res); err != nil {
		tx.Rollback()
		return "", errors.Wrap(err, "")
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "")
	}
	return id.String(), nil
}

func insertRun(ctx context.Context, tx *sql.Tx, id string, cfg *config.Config, cfgYAML []byte, res *boson.Result) error {
	sol := res.Solution
	sqlStr := fmt.Sprintf(`INSERT INTO %s (id, name, created, config, modes, success, message, nfev, nsteps, nrejected) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, tableRuns)
	args := []any{id, cfg.Name, time.Now().UnixNano(), string(cfgYAML), cfg.Modes, sol.Success, sol.Message, sol.NFev, sol.NSteps, sol.NRejected}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
	}

	sqlStr = fmt.Sprintf(`INSERT INTO %s (run, k, t, site, occupation, population) VALUES (?, ?, ?, ?, ?, ?)`, tableSamples)
	stmt, err := tx.PrepareContext(ctx, sqlStr)
	if err != nil {
		return errors.Wrap(err, sqlStr)
	}
	defer stmt.Close()
	for k, t := range res.Times {
		for site := 0; site < cfg.Modes; site++ {
			args := []any{id, k, t, site, res.Occupations.At(site, k), res.Populations.At(site, k)}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return errors.Wrap(err, fmt.Sprintf("%s %#v", sqlStr, args))
			}
		}
	}
	return nil
}

// Load returns the run with the given id, including its samples.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	sqlStr := fmt.Sprintf(`SELECT id, created, config, success, message, nfev, nsteps, nrejected, modes FROM %s WHERE id=?`, tableRuns)
	var modes int
	r, err := scanRecord(s.db.QueryRowContext(ctx, sqlStr, id), &modes)
	switch {
	case err == sql.ErrNoRows:
		return nil, errors.Wrap(ErrNotFound, id)
	case err != nil:
		return nil, errors.Wrap(err, "")
	}

	sqlStr = fmt.Sprintf(`SELECT k, t, site, occupation, population FROM %s WHERE run=? ORDER BY k, site`, tableSamples)
	rows, err := s.db.QueryContext(ctx, sqlStr, id)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	var occ, pop []float64
	for rows.Next() {
		var k, site int
		var t, n, p float64
		if err := rows.Scan(&k, &t, &site, &n, &p); err != nil {
			return nil, errors.Wrap(err, "")
		}
		if k == len(r.Times) {
			r.Times = append(r.Times, t)
		}
		occ = append(occ, n)
		pop = append(pop, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(r.Times) == 0 || len(occ) != modes*len(r.Times) {
		return nil, errors.Errorf("%d samples, expected %d x %d", len(occ), modes, len(r.Times))
	}

	// Samples are stored time major, so that they form the transposes of the tables.
	r.Occupations = mat.DenseCopyOf(mat.NewDense(len(r.Times), modes, occ).T())
	r.Populations = mat.DenseCopyOf(mat.NewDense(len(r.Times), modes, pop).T())
	return r, nil
}

// List returns all runs in the order they were saved, without their samples.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	sqlStr := fmt.Sprintf(`SELECT id, created, config, success, message, nfev, nsteps, nrejected, modes FROM %s ORDER BY created, id`, tableRuns)
	rows, err := s.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		var modes int
		r, err := scanRecord(rows, &modes)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return records, nil
}

// Delete removes the run with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer tx.Rollback()

	sqlStr := fmt.Sprintf(`DELETE FROM %s WHERE run=?`, tableSamples)
	if _, err := tx.ExecContext(ctx, sqlStr, id); err != nil {
		return errors.Wrap(err, sqlStr)
	}
	sqlStr = fmt.Sprintf(`DELETE FROM %s WHERE id=?`, tableRuns)
	res, err := tx.ExecContext(ctx, sqlStr, id)
	if err != nil {
		return errors.Wrap(err, sqlStr)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "")
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, modes *int) (*Record, error) {
	r := &Record{}
	var created int64
	var cfgYAML string
	if err := row.Scan(&r.ID, &created, &cfgYAML, &r.Success, &r.Message, &r.NFev, &r.NSteps, &r.NRejected, modes); err != nil {
		return nil, err
	}
	r.Created = time.Unix(0, created)
	r.Config = &config.Config{}
	if err := yaml.Unmarshal([]byte(cfgYAML), r.Config); err != nil {
		return nil, errors.Wrap(err, r.ID)
	}
	return r, nil
}

func newDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	db.SetMaxOpenConns(1)

	if err := prepareDB(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "")
	}

	return db, nil
}

func prepareDB(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sqlStr := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created INTEGER NOT NULL,
		config TEXT NOT NULL,
		modes INTEGER NOT NULL,
		success INTEGER NOT NULL,
		message TEXT NOT NULL,
		nfev INTEGER NOT NULL,
		nsteps INTEGER NOT NULL,
		nrejected INTEGER NOT NULL) STRICT`, tableRuns)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	sqlStr = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run TEXT NOT NULL REFERENCES %s (id),
		k INTEGER NOT NULL,
		t REAL NOT NULL,
		site INTEGER NOT NULL,
		occupation REAL NOT NULL,
		population REAL NOT NULL,
		PRIMARY KEY (run, k, site)) STRICT`, tableSamples, tableRuns)
	if _, err := db.ExecContext(ctx, sqlStr); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}
