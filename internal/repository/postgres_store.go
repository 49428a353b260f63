package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/eaglebank/accounts/shared/models"
)

const (
	uniqueViolation = "23505"
	// usernameConstraint is the name Postgres gives a column-level UNIQUE on
	// users.username; the schema spells it out so it cannot drift.
	usernameConstraint = "users_username_key"
)

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	email         TEXT NOT NULL,
	CONSTRAINT users_username_key UNIQUE (username)
)`

// PostgresStore keeps one row per user. Every method is a single statement or
// transaction, so the database provides the atomicity FileStore gets from its
// mutex. BIGSERIAL ids are never reused.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, usersSchema); err != nil {
		return ioFailure(err, "create users table")
	}
	return nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]models.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, password_hash, email FROM users ORDER BY id`)
	if err != nil {
		return nil, ioFailure(err, "query users")
	}
	defer rows.Close()

	users := []models.UserRecord{}
	for rows.Next() {
		var u models.UserRecord
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email); err != nil {
			return nil, &StoreError{Kind: CorruptData, Err: errors.Wrap(err, "scan user")}
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, ioFailure(err, "iterate users")
	}
	return users, nil
}

// SaveAll replaces the table contents in one transaction. The id sequence is
// left past both the highest saved id and every id it already handed out, so
// the next Insert never collides and never reuses an id.
func (s *PostgresStore) SaveAll(ctx context.Context, records []models.UserRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioFailure(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return ioFailure(err, "clear users")
	}
	for _, u := range records {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, password_hash, email) VALUES ($1, $2, $3, $4)`,
			u.ID, u.Username, u.PasswordHash, u.Email,
		)
		if isUsernameViolation(err) {
			return ErrUsernameTaken
		}
		if err != nil {
			return ioFailure(err, "insert user")
		}
	}
	_, err = tx.ExecContext(ctx, `
		SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST(
			(SELECT COALESCE(MAX(id), 0) FROM users),
			(SELECT last_value FROM users_id_seq),
			1
		), true)`)
	if err != nil {
		return ioFailure(err, "advance id sequence")
	}
	if err := tx.Commit(); err != nil {
		return ioFailure(err, "commit transaction")
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*models.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, email FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.UserRecord) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, email) VALUES ($1, $2, $3) RETURNING id`,
		rec.Username, rec.PasswordHash, rec.Email,
	).Scan(&rec.ID)
	if isUsernameViolation(err) {
		return ErrUsernameTaken
	}
	if err != nil {
		return ioFailure(err, "insert user")
	}
	return nil
}

func (s *PostgresStore) UpdateByID(ctx context.Context, id int64, patch models.UserPatch) (*models.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET username = COALESCE($2::text, username),
		    email    = COALESCE($3::text, email)
		WHERE id = $1
		RETURNING id, username, password_hash, email`,
		id, patch.Username, patch.Email,
	)
	return scanUser(row)
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, ioFailure(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ioFailure(err, "delete user")
	}
	return n > 0, nil
}

func scanUser(row *sql.Row) (*models.UserRecord, error) {
	var u models.UserRecord
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if isUsernameViolation(err) {
		return nil, ErrUsernameTaken
	}
	if err != nil {
		return nil, ioFailure(err, "get user")
	}
	return &u, nil
}

// isUsernameViolation reports a unique violation on the username only. Other
// unique violations, such as a primary key clash, stay IO failures.
func isUsernameViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == usernameConstraint
}

func ioFailure(err error, msg string) error {
	return &StoreError{Kind: IOFailure, Err: errors.Wrap(err, msg)}
}
