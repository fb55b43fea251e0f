package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

var ErrDuplicateEmail = errors.New("duplicate email")

func nowUnix() int64 { return time.Now().Unix() }

// isUniqueViolation matches modernc/sqlite constraint errors by text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// CreateAccount inserts a and, when avatar is non-nil, its avatar in one
// transaction. A taken email returns ErrDuplicateEmail.
func (d *DB) CreateAccount(ctx context.Context, a Account, avatar *Avatar) (int64, error) {
	if a.Email == "" || a.PassHash == "" || a.Role == "" {
		return 0, errors.New("email, password hash, and role are required")
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO accounts(email, first_name, last_name, phone, dob, gender, role, department, password_hash, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, a.Email, a.FirstName, a.LastName, a.Phone, a.DOB, a.Gender, a.Role, a.Department, a.PassHash, nowUnix())
	if isUniqueViolation(err) {
		return 0, ErrDuplicateEmail
	}
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if avatar != nil {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO avatars(account_id, filename, mime_type, data) VALUES(?, ?, ?, ?)
`, id, avatar.Filename, avatar.MimeType, avatar.Data); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

const accountCols = `id, email, first_name, last_name, phone, dob, gender, role, department, password_hash, created_at`

func scanAccount(row *sql.Row) (*Account, bool, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.DOB, &a.Gender, &a.Role, &a.Department, &a.PassHash, &a.CreatedAt)
	if err == nil {
		return &a, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

// GetAccountByEmail looks up an account case-insensitively.
func (d *DB) GetAccountByEmail(ctx context.Context, email string) (*Account, bool, error) {
	return scanAccount(d.sql.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE email=?`, email))
}

func (d *DB) GetAccountByID(ctx context.Context, id int64) (*Account, bool, error) {
	return scanAccount(d.sql.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id=?`, id))
}

// CountAccounts returns the number of accounts with role, or all when role is "".
func (d *DB) CountAccounts(ctx context.Context, role string) (int, error) {
	var n int
	var err error
	if role == "" {
		err = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	} else {
		err = d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE role=?`, role).Scan(&n)
	}
	return n, err
}

// GetAvatar returns the avatar stored for an account.
func (d *DB) GetAvatar(ctx context.Context, accountID int64) (*Avatar, bool, error) {
	var a Avatar
	err := d.sql.QueryRowContext(ctx, `
SELECT account_id, filename, mime_type, data FROM avatars WHERE account_id=?
`, accountID).Scan(&a.AccountID, &a.Filename, &a.MimeType, &a.Data)
	if err == nil {
		return &a, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

// CreateSession inserts a session token valid for ttl.
func (d *DB) CreateSession(ctx context.Context, token string, accountID int64, ttl time.Duration) error {
	if token == "" || accountID <= 0 {
		return errors.New("invalid session")
	}
	now := nowUnix()
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO sessions(token, account_id, created_at, expires_at) VALUES(?, ?, ?, ?)
`, token, accountID, now, now+int64(ttl.Seconds()))
	return err
}

// GetSession looks up a session by token. Expired sessions are reported as
// missing.
func (d *DB) GetSession(ctx context.Context, token string) (*Session, bool, error) {
	var s Session
	err := d.sql.QueryRowContext(ctx, `
SELECT token, account_id, created_at, expires_at FROM sessions WHERE token=? AND expires_at > ?
`, token, nowUnix()).Scan(&s.Token, &s.AccountID, &s.CreatedAt, &s.ExpiresAt)
	if err == nil {
		return &s, true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	return nil, false, err
}

func (d *DB) DeleteSession(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token is required")
	}
	_, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE token=?`, token)
	return err
}

// DeleteExpiredSessions deletes sessions that expired at or before now.
func (d *DB) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
