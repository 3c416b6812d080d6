package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// UserRecord is one row of user_info.
type UserRecord struct {
	ID           int64          `db:"id" json:"id"`
	Username     string         `db:"username" json:"username"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	AccessToken  sql.NullString `db:"access_token" json:"-"`
}

// AccountStore persists user accounts in sqlite.
type AccountStore struct {
	db *sqlx.DB
}

// openAccountStore connects to the sqlite file at path and creates the schema.
func openAccountStore(path string) (*AccountStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_synchronous=NORMAL&_txlock=deferred", path)
	}
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	s := &AccountStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *AccountStore) initDB() error {
	schema := `
	PRAGMA journal_mode=WAL;

	CREATE TABLE IF NOT EXISTS user_info (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		access_token TEXT
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		log.Printf("initDB error: %v", err)
		return err
	}
	return nil
}

func (s *AccountStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account. It returns ErrEmailTaken when the email
// is already registered.
func (s *AccountStore) CreateUser(ctx context.Context, username, email, passwordHash string) (UserRecord, error) {
	var existing int
	err := s.db.GetContext(ctx, &existing, "SELECT COUNT(*) FROM user_info WHERE email = ?", email)
	if err != nil {
		return UserRecord{}, fmt.Errorf("lookup %s: %w", email, err)
	}
	if existing > 0 {
		return UserRecord{}, ErrEmailTaken
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO user_info (username, email, password_hash) VALUES (?, ?, ?)",
		username, email, passwordHash)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return UserRecord{}, ErrEmailTaken
		}
		return UserRecord{}, fmt.Errorf("insert %s: %w", email, err)
	}
	id, _ := result.LastInsertId()
	return UserRecord{ID: id, Username: username, Email: email, PasswordHash: passwordHash}, nil
}

// UserByEmail returns ErrUnknownEmail when no account matches.
func (s *AccountStore) UserByEmail(ctx context.Context, email string) (UserRecord, error) {
	var u UserRecord
	err := s.db.GetContext(ctx, &u,
		"SELECT id, username, email, password_hash, access_token FROM user_info WHERE email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrUnknownEmail
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("lookup %s: %w", email, err)
	}
	return u, nil
}

// VerifyCredentials returns the account only when password matches its hash.
func (s *AccountStore) VerifyCredentials(ctx context.Context, email, password string) (UserRecord, error) {
	u, err := s.UserByEmail(ctx, email)
	if err != nil {
		return UserRecord{}, err
	}
	if !checkPassword(u.PasswordHash, password) {
		return UserRecord{}, ErrWrongPassword
	}
	return u, nil
}

// SaveToken records the latest access token issued to the account.
func (s *AccountStore) SaveToken(ctx context.Context, email, token string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE user_info SET access_token = ? WHERE email = ?", token, email)
	if err != nil {
		return fmt.Errorf("save token for %s: %w", email, err)
	}
	return nil
}
