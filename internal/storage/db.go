package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"kila/internal"
)

var ErrNotFound = errors.New("storage: not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS users (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  username TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE,
  passwordHash TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS validations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  validationId TEXT NOT NULL UNIQUE,
  invoiceNumber TEXT,
  filename TEXT,
  userId INTEGER,
  passed INTEGER NOT NULL,
  status TEXT NOT NULL,
  source TEXT NOT NULL,
  conflictCount INTEGER NOT NULL DEFAULT 0,
  errorsJson TEXT NOT NULL,
  warningsJson TEXT NOT NULL,
  invoiceJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(userId) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_validations_userId ON validations(userId);
CREATE INDEX IF NOT EXISTS idx_validations_createdAt ON validations(createdAt);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) InsertUser(username, email, passwordHash string) (internal.UserRow, error) {
	result, err := d.conn.Exec(`
INSERT INTO users (username, email, passwordHash) VALUES (?, ?, ?)
`, username, email, passwordHash)
	if err != nil {
		return internal.UserRow{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return internal.UserRow{}, err
	}

	row, err := d.GetUserByID(id)
	if err != nil {
		return internal.UserRow{}, err
	}
	return *row, nil
}

func (d *DB) GetUserByID(id int64) (*internal.UserRow, error) {
	return d.scanUser(d.conn.QueryRow(`
SELECT id, username, email, passwordHash, createdAt FROM users WHERE id = ?
`, id))
}

func (d *DB) GetUserByEmail(email string) (*internal.UserRow, error) {
	return d.scanUser(d.conn.QueryRow(`
SELECT id, username, email, passwordHash, createdAt FROM users WHERE email = ?
`, email))
}

func (d *DB) scanUser(row *sql.Row) (*internal.UserRow, error) {
	var u internal.UserRow
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *DB) InsertValidation(row internal.ValidationRow) (int64, error) {
	errorsJSON, _ := json.Marshal(row.Errors)
	warningsJSON, _ := json.Marshal(row.Warnings)

	result, err := d.conn.Exec(`
INSERT INTO validations (
  validationId, invoiceNumber, filename, userId, passed, status,
  source, conflictCount, errorsJson, warningsJson, invoiceJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, row.ValidationID, row.InvoiceNumber, row.Filename, row.UserID, row.Passed,
		row.Status, row.Source, row.ConflictCount,
		string(errorsJSON), string(warningsJSON), row.InvoiceJSON)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const validationColumns = `
id, validationId, invoiceNumber, filename, userId, passed, status,
source, conflictCount, errorsJson, warningsJson, invoiceJson, createdAt`

// ListValidations returns the newest validations first. A nil userID lists
// rows for all users.
func (d *DB) ListValidations(userID *int64, limit int) ([]internal.ValidationRow, error) {
	query := `SELECT ` + validationColumns + ` FROM validations`
	args := []any{}
	if userID != nil {
		query += ` WHERE userId = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY createdAt DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ValidationRow
	for rows.Next() {
		row, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) GetValidation(validationID string) (*internal.ValidationRow, error) {
	rows, err := d.conn.Query(`SELECT `+validationColumns+` FROM validations WHERE validationId = ?`, validationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	row, err := scanValidation(rows)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func scanValidation(rows *sql.Rows) (internal.ValidationRow, error) {
	var row internal.ValidationRow
	var errorsJSON, warningsJSON string
	if err := rows.Scan(
		&row.ID, &row.ValidationID, &row.InvoiceNumber, &row.Filename, &row.UserID,
		&row.Passed, &row.Status, &row.Source, &row.ConflictCount,
		&errorsJSON, &warningsJSON, &row.InvoiceJSON, &row.CreatedAt,
	); err != nil {
		return internal.ValidationRow{}, err
	}
	_ = json.Unmarshal([]byte(errorsJSON), &row.Errors)
	_ = json.Unmarshal([]byte(warningsJSON), &row.Warnings)
	return row, nil
}

func (d *DB) DeleteValidation(validationID string) error {
	result, err := d.conn.Exec(`DELETE FROM validations WHERE validationId = ?`, validationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneValidations trims a user's history down to keep rows, oldest first.
func (d *DB) PruneValidations(userID *int64, keep int) error {
	if keep <= 0 {
		return nil
	}
	if userID == nil {
		_, err := d.conn.Exec(`
DELETE FROM validations WHERE userId IS NULL AND id NOT IN (
  SELECT id FROM validations WHERE userId IS NULL ORDER BY createdAt DESC, id DESC LIMIT ?
)`, keep)
		return err
	}
	_, err := d.conn.Exec(`
DELETE FROM validations WHERE userId = ? AND id NOT IN (
  SELECT id FROM validations WHERE userId = ? ORDER BY createdAt DESC, id DESC LIMIT ?
)`, *userID, *userID, keep)
	return err
}

func (d *DB) GetStats(userID *int64) (internal.Stats, error) {
	var stats internal.Stats

	where := ``
	args := []any{}
	if userID != nil {
		where = ` WHERE userId = ?`
		args = append(args, *userID)
	}

	err := d.conn.QueryRow(`
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN status = 'warning' THEN 1 ELSE 0 END), 0)
FROM validations`+where, args...).Scan(&stats.Total, &stats.Approved, &stats.Rejected, &stats.Warning)
	if err != nil {
		return internal.Stats{}, err
	}

	rows, err := d.conn.Query(`
SELECT substr(createdAt, 1, 10) AS day, COUNT(*)
FROM validations`+where+`
GROUP BY day ORDER BY day ASC`, args...)
	if err != nil {
		return internal.Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var dc internal.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return internal.Stats{}, err
		}
		stats.PerDay = append(stats.PerDay, dc)
	}
	return stats, rows.Err()
}
