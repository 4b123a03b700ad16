package db

import (
	"database/sql"
	"errors"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"salesproof/ml"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB initializes the SQLite database. WAL mode lets the run listing read
// while predictions are being written.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name TEXT NOT NULL,
        model_type TEXT NOT NULL,
        status TEXT NOT NULL,
        error TEXT DEFAULT '',
        row_count INTEGER DEFAULT 0,
        input_digest TEXT DEFAULT '',
        output_digest TEXT DEFAULT '',
        verified INTEGER DEFAULT 0,
        mae REAL,
        mse REAL,
        rmse REAL,
        r2 REAL,
        created_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        run_id INTEGER NOT NULL,
        row_index INTEGER NOT NULL,
        bits INTEGER NOT NULL,
        PRIMARY KEY(run_id, row_index)
    );
    CREATE INDEX IF NOT EXISTS idx_runs_output_digest ON runs(output_digest);
    `

	_, err = database.Exec(query)
	return err
}

// CloseDB closes the database if it is open.
func CloseDB() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	ID           int64       `json:"id"`
	ModelName    string      `json:"model_name"`
	ModelType    string      `json:"model_type"`
	Status       string      `json:"status"`
	Error        string      `json:"error,omitempty"`
	Rows         int         `json:"rows"`
	InputDigest  string      `json:"input_digest,omitempty"`
	OutputDigest string      `json:"output_digest,omitempty"`
	Verified     bool        `json:"verified"`
	Metrics      *ml.Metrics `json:"metrics,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SaveRun stores a run and its predictions in one transaction and returns
// the new run id.
func SaveRun(run Run, predictions ml.PredictionVector) (int64, error) {
	if database == nil {
		return 0, ErrNotInitialized
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := database.Begin()
	if err != nil {
		return 0, err
	}

	var mae, mse, rmse, r2 sql.NullFloat64
	if run.Metrics != nil {
		mae = sql.NullFloat64{Float64: run.Metrics.MAE, Valid: true}
		mse = sql.NullFloat64{Float64: run.Metrics.MSE, Valid: true}
		rmse = sql.NullFloat64{Float64: run.Metrics.RMSE, Valid: true}
		r2 = sql.NullFloat64{Float64: run.Metrics.R2, Valid: true}
	}
	res, err := tx.Exec(`
        INSERT INTO runs (
            model_name, model_type, status, error, row_count,
            input_digest, output_digest, verified, mae, mse, rmse, r2, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ModelName, run.ModelType, run.Status, run.Error, run.Rows,
		run.InputDigest, run.OutputDigest, run.Verified, mae, mse, rmse, r2, run.CreatedAt)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, err
	}

	if len(predictions) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO predictions (run_id, row_index, bits) VALUES (?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		defer stmt.Close()
		for i, v := range predictions {
			if _, err := stmt.Exec(id, i, int64(math.Float32bits(v))); err != nil {
				tx.Rollback()
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// MarkVerified records the outcome of verifying a run's proof.
func MarkVerified(id int64, verified bool) error {
	if database == nil {
		return ErrNotInitialized
	}
	res, err := database.Exec(`UPDATE runs SET verified = ? WHERE id = ?`, verified, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const runColumns = `id, model_name, model_type, status, error, row_count,
            input_digest, output_digest, verified, mae, mse, rmse, r2, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var mae, mse, rmse, r2 sql.NullFloat64
	err := row.Scan(&r.ID, &r.ModelName, &r.ModelType, &r.Status, &r.Error, &r.Rows,
		&r.InputDigest, &r.OutputDigest, &r.Verified, &mae, &mse, &rmse, &r2, &r.CreatedAt)
	if err != nil {
		return Run{}, err
	}
	if mae.Valid {
		r.Metrics = &ml.Metrics{MAE: mae.Float64, MSE: mse.Float64, RMSE: rmse.Float64, R2: r2.Float64}
	}
	return r, nil
}

// LoadRuns returns the most recent runs first.
func LoadRuns(limit int) ([]Run, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := database.Query(`
        SELECT `+runColumns+`
        FROM runs
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun returns sql.ErrNoRows when id does not exist.
func LoadRun(id int64) (*Run, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	r, err := scanRun(database.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadPredictions returns a run's predictions in row order. Values are stored
// as their float32 bit patterns, so NaN and ±Inf come back unchanged.
func LoadPredictions(runID int64) (ml.PredictionVector, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.Query(`
        SELECT bits FROM predictions
        WHERE run_id = ?
        ORDER BY row_index ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	preds := make(ml.PredictionVector, 0)
	for rows.Next() {
		var bits int64
		if err := rows.Scan(&bits); err != nil {
			return nil, err
		}
		preds = append(preds, math.Float32frombits(uint32(bits)))
	}
	return preds, rows.Err()
}
