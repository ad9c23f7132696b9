package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL flavour a Store speaks.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store implements otpgate.PendingRegistrationStore, OTPStore, AccountStore
// and CredentialStore on one database.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var (
	_ otpgate.PendingRegistrationStore = (*Store)(nil)
	_ otpgate.OTPStore                 = (*Store)(nil)
	_ otpgate.AccountStore             = (*Store)(nil)
	_ otpgate.CredentialStore          = (*Store)(nil)
)

// Open connects with driver "sqlite" or "pgx", pings, and runs migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var dialect Dialect
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
	case "pgx":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	store := New(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an already opened database. The caller runs Migrate.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Stores returns s in every slot of otpgate.Stores.
func (s *Store) Stores() otpgate.Stores {
	return otpgate.Stores{Pending: s, OTPs: s, Accounts: s, Credentials: s}
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func dbError(err error) error {
	return fmt.Errorf("db error: %w", err)
}

func (s *Store) UpsertPending(ctx context.Context, p otpgate.PendingRegistration) error {
	query := `INSERT INTO pending_registrations (email, first_name, last_name, password_hash, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		p.Email, p.FirstName, p.LastName, p.PasswordHash, toNanos(p.UpdatedAt)); err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) GetPending(ctx context.Context, email string) (*otpgate.PendingRegistration, error) {
	query := `SELECT email, first_name, last_name, password_hash, updated_at
		FROM pending_registrations WHERE email = ?`

	p := &otpgate.PendingRegistration{}
	var updated int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), email).
		Scan(&p.Email, &p.FirstName, &p.LastName, &p.PasswordHash, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrRecordNotFound
		}
		return nil, dbError(err)
	}
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

func (s *Store) DeletePending(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM pending_registrations WHERE email = ?`), email); err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) AppendOTP(ctx context.Context, r otpgate.OTPRecord) error {
	query := `INSERT INTO otp_codes (email, code, issued_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), r.Email, r.Code, toNanos(r.IssuedAt)); err != nil {
		return dbError(err)
	}
	return nil
}

// LatestOTP orders by issue time, then by insertion id.
func (s *Store) LatestOTP(ctx context.Context, email string) (*otpgate.OTPRecord, error) {
	query := `SELECT email, code, issued_at FROM otp_codes
		WHERE email = ?
		ORDER BY issued_at DESC, id DESC
		LIMIT 1`

	r := &otpgate.OTPRecord{}
	var issued int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), email).Scan(&r.Email, &r.Code, &issued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrRecordNotFound
		}
		return nil, dbError(err)
	}
	r.IssuedAt = fromNanos(issued)
	return r, nil
}

func (s *Store) ListOTPs(ctx context.Context, email string) ([]otpgate.OTPRecord, error) {
	query := `SELECT email, code, issued_at FROM otp_codes WHERE email = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), email)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []otpgate.OTPRecord
	for rows.Next() {
		var r otpgate.OTPRecord
		var issued int64
		if err := rows.Scan(&r.Email, &r.Code, &issued); err != nil {
			return nil, dbError(err)
		}
		r.IssuedAt = fromNanos(issued)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func (s *Store) DeleteOTPs(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM otp_codes WHERE email = ?`), email); err != nil {
		return dbError(err)
	}
	return nil
}

func (s *Store) CreateAccountIfAbsent(ctx context.Context, a otpgate.Account) error {
	query := `INSERT INTO accounts (id, email, first_name, last_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		a.ID, a.Email, a.FirstName, a.LastName, a.PasswordHash, toNanos(a.CreatedAt))
	if err != nil {
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return otpgate.ErrAccountExists
	}
	return nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*otpgate.Account, error) {
	return s.getAccount(ctx, `SELECT id, email, first_name, last_name, password_hash, created_at
		FROM accounts WHERE email = ?`, email)
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*otpgate.Account, error) {
	return s.getAccount(ctx, `SELECT id, email, first_name, last_name, password_hash, created_at
		FROM accounts WHERE id = ?`, id)
}

func (s *Store) getAccount(ctx context.Context, query, arg string) (*otpgate.Account, error) {
	a := &otpgate.Account{}
	var created int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).
		Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrRecordNotFound
		}
		return nil, dbError(err)
	}
	a.CreatedAt = fromNanos(created)
	return a, nil
}

// GetOrCreateCredential inserts candidate unless the account already has a
// credential, then reads back whichever row is stored.
func (s *Store) GetOrCreateCredential(ctx context.Context, candidate otpgate.Credential) (*otpgate.Credential, bool, error) {
	query := `INSERT INTO credentials (account_id, token, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (account_id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		candidate.AccountID, candidate.Token, toNanos(candidate.CreatedAt))
	if err != nil {
		return nil, false, dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, dbError(err)
	}

	cred, err := s.getCredential(ctx, `SELECT account_id, token, created_at FROM credentials WHERE account_id = ?`, candidate.AccountID)
	if err != nil {
		return nil, false, err
	}
	return cred, n == 1, nil
}

func (s *Store) GetCredentialByToken(ctx context.Context, token string) (*otpgate.Credential, error) {
	return s.getCredential(ctx, `SELECT account_id, token, created_at FROM credentials WHERE token = ?`, token)
}

func (s *Store) getCredential(ctx context.Context, query, arg string) (*otpgate.Credential, error) {
	c := &otpgate.Credential{}
	var created int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), arg).Scan(&c.AccountID, &c.Token, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrRecordNotFound
		}
		return nil, dbError(err)
	}
	c.CreatedAt = fromNanos(created)
	return c, nil
}

// PurgeStale deletes pending registrations last written before cutoff that
// have no code issued at or after cutoff, then codes issued before cutoff.
// A Resend therefore keeps its registration alive. Accounts and credentials
// are never purged.
func (s *Store) PurgeStale(ctx context.Context, cutoff time.Time) (pending, codes int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, dbError(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM pending_registrations
		WHERE updated_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM otp_codes
			WHERE otp_codes.email = pending_registrations.email AND otp_codes.issued_at >= ?
		)`), cutoff.UnixNano(), cutoff.UnixNano())
	if err != nil {
		return 0, 0, dbError(err)
	}
	if pending, err = res.RowsAffected(); err != nil {
		return 0, 0, dbError(err)
	}

	res, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM otp_codes WHERE issued_at < ?`), cutoff.UnixNano())
	if err != nil {
		return 0, 0, dbError(err)
	}
	if codes, err = res.RowsAffected(); err != nil {
		return 0, 0, dbError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, dbError(err)
	}
	return pending, codes, nil
}
