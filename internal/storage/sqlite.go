// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // Driver sqlite

	"github.com/qsrv/sourceq/internal/models"
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertSnapshot records one observed server state.
func (r *Repository) InsertSnapshot(s models.Snapshot) error {
	query := `
	INSERT INTO snapshots (
		address, port, country_code, server_name, map_name, game_name,
		game_version, server_os, players, max_players, bots, ping_ms, queried_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`

	_, err := r.db.Exec(query,
		s.Address, s.Port, s.CountryCode, s.ServerName, s.MapName, s.GameName,
		s.GameVersion, s.ServerOS, s.Players, s.MaxPlayers, s.Bots, s.PingMs, s.QueriedAt,
	)

	return err
}

// Latest returns the most recent snapshot of every monitored server,
// ordered by query time descending.
func (r *Repository) Latest() ([]models.Snapshot, error) {
	rows, err := r.db.Query(`
		SELECT address, port, country_code, server_name, map_name, game_name,
		       game_version, server_os, players, max_players, bots, ping_ms, queried_at
		FROM snapshots
		WHERE id IN (SELECT MAX(id) FROM snapshots GROUP BY address, port)
		ORDER BY queried_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSnapshots(rows)
}

// History returns up to limit snapshots of one server, newest first.
func (r *Repository) History(address string, port int, limit int) ([]models.Snapshot, error) {
	rows, err := r.db.Query(`
		SELECT address, port, country_code, server_name, map_name, game_name,
		       game_version, server_os, players, max_players, bots, ping_ms, queried_at
		FROM snapshots
		WHERE address = ? AND port = ?
		ORDER BY queried_at DESC
		LIMIT ?
	`, address, port, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSnapshots(rows)
}

// PruneBefore deletes snapshots older than the cutoff and returns the
// number of removed rows.
func (r *Repository) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM snapshots WHERE queried_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func scanSnapshots(rows *sql.Rows) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(
			&s.Address, &s.Port, &s.CountryCode, &s.ServerName, &s.MapName, &s.GameName,
			&s.GameVersion, &s.ServerOS, &s.Players, &s.MaxPlayers, &s.Bots, &s.PingMs, &s.QueriedAt,
		); err != nil {
			continue
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snapshots, nil
}
