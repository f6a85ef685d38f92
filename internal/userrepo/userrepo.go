// Package userrepo is the user repository external collaborator (spec
// §6): GetUserByUsername, AddFriend, RemoveFriend. Two implementations:
// a local SQLite-backed store (grounded in the donor's store/store.go
// connection-setup conventions) and a remote HTTP-JSON client, chosen by
// New depending on configuration.
package userrepo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "modernc.org/sqlite"
)

var ErrUserNotFound = errors.New("userrepo: user not found")

// User is the repository's view of an account.
type User struct {
	ID              int32
	Name            string
	NameUnicode     string
	PasswordArgon2  string
	Country         string
}

// Repository is the consumed contract (spec §6).
type Repository interface {
	GetUserByUsername(ctx context.Context, name string) (User, error)
	AddFriend(ctx context.Context, userID, targetID int32) error
	RemoveFriend(ctx context.Context, userID, targetID int32) error
	Friends(ctx context.Context, userID int32) ([]int32, error)
	Close() error
}

// New picks a SQLite-backed repository when dbPath is set, otherwise a
// remote HTTP-JSON repository when remoteURL is set.
func New(dbPath, remoteURL string) (Repository, error) {
	if dbPath != "" {
		return newSQLite(dbPath)
	}
	return newRemote(remoteURL), nil
}

// --- local sqlite implementation -------------------------------------

type sqliteRepo struct {
	db *sql.DB
}

var migrations = []string{
	// v1 — users and friends tables
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		name_unicode TEXT NOT NULL DEFAULT '',
		password_argon2 TEXT NOT NULL,
		country TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS friends (
		user_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		PRIMARY KEY (user_id, target_id)
	)`,
}

func newSQLite(path string) (*sqliteRepo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userrepo: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		// non-fatal: WAL is a performance hint, not a correctness requirement
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		// non-fatal, see above
	}
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("userrepo: migrate: %w", err)
		}
	}
	return &sqliteRepo{db: db}, nil
}

func (r *sqliteRepo) GetUserByUsername(ctx context.Context, name string) (User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, name_unicode, password_argon2, country FROM users WHERE name = ?`, name)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.NameUnicode, &u.PasswordArgon2, &u.Country); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("userrepo: get user %s: %w", name, err)
	}
	return u, nil
}

func (r *sqliteRepo) AddFriend(ctx context.Context, userID, targetID int32) error {
	if targetID == -1 {
		// -1 is reserved for a system user; ignore per spec §4.6.
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friends (user_id, target_id) VALUES (?, ?)`, userID, targetID)
	if err != nil {
		return fmt.Errorf("userrepo: add friend %d->%d: %w", userID, targetID, err)
	}
	return nil
}

func (r *sqliteRepo) RemoveFriend(ctx context.Context, userID, targetID int32) error {
	if targetID == -1 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM friends WHERE user_id = ? AND target_id = ?`, userID, targetID)
	if err != nil {
		return fmt.Errorf("userrepo: remove friend %d->%d: %w", userID, targetID, err)
	}
	return nil
}

func (r *sqliteRepo) Friends(ctx context.Context, userID int32) ([]int32, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT target_id FROM friends WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("userrepo: list friends %d: %w", userID, err)
	}
	defer rows.Close()
	var out []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("userrepo: scan friend row: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *sqliteRepo) Close() error { return r.db.Close() }

// --- remote HTTP-JSON implementation ----------------------------------

type remoteRepo struct {
	baseURL string
	client  *http.Client
}

func newRemote(baseURL string) *remoteRepo {
	return &remoteRepo{baseURL: baseURL, client: &http.Client{Timeout: 3 * time.Second}}
}

func (r *remoteRepo) GetUserByUsername(ctx context.Context, name string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/users/by-name/"+name, nil)
	if err != nil {
		return User{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("userrepo: remote get user %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return User{}, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("userrepo: remote get user %s: status %d", name, resp.StatusCode)
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("userrepo: decode remote user: %w", err)
	}
	return u, nil
}

func (r *remoteRepo) AddFriend(ctx context.Context, userID, targetID int32) error {
	if targetID == -1 {
		return nil
	}
	return r.post(ctx, "/friends/add", userID, targetID)
}

func (r *remoteRepo) RemoveFriend(ctx context.Context, userID, targetID int32) error {
	if targetID == -1 {
		return nil
	}
	return r.post(ctx, "/friends/remove", userID, targetID)
}

func (r *remoteRepo) post(ctx context.Context, path string, userID, targetID int32) error {
	body, _ := json.Marshal(map[string]int32{"user_id": userID, "target_id": targetID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("userrepo: remote %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("userrepo: remote %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (r *remoteRepo) Friends(ctx context.Context, userID int32) ([]int32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/friends/%d", r.baseURL, userID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userrepo: remote list friends %d: %w", userID, err)
	}
	defer resp.Body.Close()
	var ids []int32
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, fmt.Errorf("userrepo: decode remote friends: %w", err)
	}
	return ids, nil
}

func (r *remoteRepo) Close() error { return nil }
