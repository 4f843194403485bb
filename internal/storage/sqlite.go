package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/org/legacyvault/pkg/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and applies migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// One connection: writes are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	if err := RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- KDF settings ---

func (s *SQLiteStore) InitSettings(ctx context.Context, k *models.KDFSettings) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kdf_settings (id, salt, iterations, key_check, key_check_nonce, created_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		k.Salt, k.Iterations, k.KeyCheck, k.KeyCheckNonce, toMillis(k.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting kdf settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting kdf settings: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLiteStore) GetSettings(ctx context.Context) (*models.KDFSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT salt, iterations, key_check, key_check_nonce, created_at FROM kdf_settings WHERE id = 1`)
	var k models.KDFSettings
	var created int64
	if err := row.Scan(&k.Salt, &k.Iterations, &k.KeyCheck, &k.KeyCheckNonce, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading kdf settings: %w", err)
	}
	k.CreatedAt = fromMillis(created)
	return &k, nil
}

func (s *SQLiteStore) ReplaceSettings(ctx context.Context, k *models.KDFSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kdf_settings (id, salt, iterations, key_check, key_check_nonce, created_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET salt = excluded.salt,
			iterations = excluded.iterations,
			key_check = excluded.key_check,
			key_check_nonce = excluded.key_check_nonce,
			created_at = excluded.created_at`,
		k.Salt, k.Iterations, k.KeyCheck, k.KeyCheckNonce, toMillis(k.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("replacing kdf settings: %w", err)
	}
	return nil
}

// --- Records ---

func (s *SQLiteStore) PutRecord(ctx context.Context, r *models.EncryptedRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, category, cipher_text, nonce, last_modified)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET category = excluded.category,
			cipher_text = excluded.cipher_text,
			nonce = excluded.nonce,
			last_modified = excluded.last_modified`,
		r.ID, string(r.Category), r.CipherText, r.Nonce, toMillis(r.LastModified),
	)
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*models.EncryptedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, category, cipher_text, nonce, last_modified FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) DeleteRecord(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM records WHERE id = ?`, id)
}

func (s *SQLiteStore) ListRecords(ctx context.Context) ([]*models.EncryptedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, cipher_text, nonce, last_modified FROM records ORDER BY last_modified, id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []*models.EncryptedRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.EncryptedRecord, error) {
	var r models.EncryptedRecord
	var category string
	var modified int64
	if err := row.Scan(&r.ID, &category, &r.CipherText, &r.Nonce, &modified); err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	r.LastModified = fromMillis(modified)
	return &r, nil
}

// --- Trustees ---

func (s *SQLiteStore) PutTrustee(ctx context.Context, t *models.Trustee) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trustees (id, name, email, phone, relationship, added_date)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			relationship = excluded.relationship,
			added_date = excluded.added_date`,
		t.ID, t.Name, t.Email, t.Phone, t.Relationship, toMillis(t.AddedDate),
	)
	if err != nil {
		return fmt.Errorf("upserting trustee: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTrustee(ctx context.Context, id string) (*models.Trustee, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone, relationship, added_date FROM trustees WHERE id = ?`, id)
	t, err := scanTrustee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading trustee: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) DeleteTrustee(ctx context.Context, id string) error {
	return s.deleteByID(ctx, `DELETE FROM trustees WHERE id = ?`, id)
}

func (s *SQLiteStore) ListTrustees(ctx context.Context) ([]*models.Trustee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, phone, relationship, added_date FROM trustees ORDER BY added_date, id`)
	if err != nil {
		return nil, fmt.Errorf("listing trustees: %w", err)
	}
	defer rows.Close()

	var out []*models.Trustee
	for rows.Next() {
		t, err := scanTrustee(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trustee: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrustee(row rowScanner) (*models.Trustee, error) {
	var t models.Trustee
	var added int64
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Relationship, &added); err != nil {
		return nil, err
	}
	t.AddedDate = fromMillis(added)
	return &t, nil
}

// --- Release conditions ---

func (s *SQLiteStore) GetReleaseConditions(ctx context.Context) (*models.ReleaseConditions, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT inactivity_days, required_trustees, last_activity, released, release_timestamp
		 FROM release_conditions WHERE id = 1`)
	var c models.ReleaseConditions
	var last int64
	var releasedAt sql.NullInt64
	if err := row.Scan(&c.InactivityThresholdDays, &c.RequiredTrusteeCount, &last, &c.Released, &releasedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading release conditions: %w", err)
	}
	c.LastActivity = fromMillis(last)
	c.ReleaseTimestamp = fromNullMillis(releasedAt)
	return &c, nil
}

func (s *SQLiteStore) PutReleaseConditions(ctx context.Context, c *models.ReleaseConditions) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO release_conditions (id, inactivity_days, required_trustees, last_activity, released, release_timestamp)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET inactivity_days = excluded.inactivity_days,
			required_trustees = excluded.required_trustees,
			last_activity = excluded.last_activity,
			released = excluded.released,
			release_timestamp = excluded.release_timestamp`,
		c.InactivityThresholdDays, c.RequiredTrusteeCount, toMillis(c.LastActivity), c.Released, toNullMillis(c.ReleaseTimestamp),
	)
	if err != nil {
		return fmt.Errorf("writing release conditions: %w", err)
	}
	return nil
}

// --- Email settings ---

func (s *SQLiteStore) GetEmailSettings(ctx context.Context) (*models.EmailSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT from_address, backup_address, backup_frequency, backup_last_sent FROM email_settings WHERE id = 1`)
	var e models.EmailSettings
	var addr sql.NullString
	var freq, lastSent sql.NullInt64
	if err := row.Scan(&e.FromAddress, &addr, &freq, &lastSent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading email settings: %w", err)
	}
	if addr.Valid {
		e.Backup = &models.BackupEmail{
			Address:       addr.String,
			FrequencyDays: int(freq.Int64),
			LastSent:      fromNullMillis(lastSent),
		}
	}
	return &e, nil
}

func (s *SQLiteStore) PutEmailSettings(ctx context.Context, e *models.EmailSettings) error {
	var addr sql.NullString
	var freq, lastSent sql.NullInt64
	if e.Backup != nil {
		addr = sql.NullString{String: e.Backup.Address, Valid: true}
		freq = sql.NullInt64{Int64: int64(e.Backup.FrequencyDays), Valid: true}
		lastSent = toNullMillis(e.Backup.LastSent)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_settings (id, from_address, backup_address, backup_frequency, backup_last_sent)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET from_address = excluded.from_address,
			backup_address = excluded.backup_address,
			backup_frequency = excluded.backup_frequency,
			backup_last_sent = excluded.backup_last_sent`,
		e.FromAddress, addr, freq, lastSent,
	)
	if err != nil {
		return fmt.Errorf("writing email settings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) deleteByID(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Timestamps are stored as Unix milliseconds.

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
