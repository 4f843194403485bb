package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/legacyvault/pkg/models"
)

// PostgresBackend is a Store backed by PostgreSQL.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

// --- KDF settings ---

func (p *PostgresBackend) InitSettings(ctx context.Context, k *models.KDFSettings) error {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO kdf_settings (id, salt, iterations, key_check, key_check_nonce, created_at)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		k.Salt, k.Iterations, k.KeyCheck, k.KeyCheckNonce, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting kdf settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (p *PostgresBackend) GetSettings(ctx context.Context) (*models.KDFSettings, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT salt, iterations, key_check, key_check_nonce, created_at FROM kdf_settings WHERE id = 1`)
	var k models.KDFSettings
	if err := row.Scan(&k.Salt, &k.Iterations, &k.KeyCheck, &k.KeyCheckNonce, &k.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	k.CreatedAt = k.CreatedAt.UTC()
	return &k, nil
}

func (p *PostgresBackend) ReplaceSettings(ctx context.Context, k *models.KDFSettings) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kdf_settings (id, salt, iterations, key_check, key_check_nonce, created_at)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET salt = EXCLUDED.salt, iterations = EXCLUDED.iterations,
		     key_check = EXCLUDED.key_check, key_check_nonce = EXCLUDED.key_check_nonce,
		     created_at = EXCLUDED.created_at`,
		k.Salt, k.Iterations, k.KeyCheck, k.KeyCheckNonce, k.CreatedAt,
	)
	return err
}

// --- Records ---

func (p *PostgresBackend) PutRecord(ctx context.Context, r *models.EncryptedRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO records (id, category, cipher_text, nonce, last_modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, cipher_text = EXCLUDED.cipher_text,
		     nonce = EXCLUDED.nonce, last_modified = EXCLUDED.last_modified`,
		r.ID, string(r.Category), r.CipherText, r.Nonce, r.LastModified,
	)
	if err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetRecord(ctx context.Context, id string) (*models.EncryptedRecord, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, category, cipher_text, nonce, last_modified FROM records WHERE id = $1`, id)
	r, err := scanPgRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func (p *PostgresBackend) DeleteRecord(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM records WHERE id = $1`, id)
}

func (p *PostgresBackend) ListRecords(ctx context.Context) ([]*models.EncryptedRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, category, cipher_text, nonce, last_modified FROM records ORDER BY last_modified, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.EncryptedRecord
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresBackend) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

func scanPgRecord(row pgx.Row) (*models.EncryptedRecord, error) {
	var r models.EncryptedRecord
	var category string
	if err := row.Scan(&r.ID, &category, &r.CipherText, &r.Nonce, &r.LastModified); err != nil {
		return nil, err
	}
	r.Category = models.Category(category)
	r.LastModified = r.LastModified.UTC()
	return &r, nil
}

// --- Trustees ---

func (p *PostgresBackend) PutTrustee(ctx context.Context, t *models.Trustee) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO trustees (id, name, email, phone, relationship, added_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email,
		     phone = EXCLUDED.phone, relationship = EXCLUDED.relationship, added_date = EXCLUDED.added_date`,
		t.ID, t.Name, t.Email, t.Phone, t.Relationship, t.AddedDate,
	)
	if err != nil {
		return fmt.Errorf("upserting trustee: %w", err)
	}
	return nil
}

func (p *PostgresBackend) GetTrustee(ctx context.Context, id string) (*models.Trustee, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, name, email, phone, relationship, added_date FROM trustees WHERE id = $1`, id)
	t, err := scanPgTrustee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (p *PostgresBackend) DeleteTrustee(ctx context.Context, id string) error {
	return p.deleteByID(ctx, `DELETE FROM trustees WHERE id = $1`, id)
}

func (p *PostgresBackend) ListTrustees(ctx context.Context) ([]*models.Trustee, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, name, email, phone, relationship, added_date FROM trustees ORDER BY added_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Trustee
	for rows.Next() {
		t, err := scanPgTrustee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanPgTrustee(row pgx.Row) (*models.Trustee, error) {
	var t models.Trustee
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Relationship, &t.AddedDate); err != nil {
		return nil, err
	}
	t.AddedDate = t.AddedDate.UTC()
	return &t, nil
}

// --- Release conditions ---

func (p *PostgresBackend) GetReleaseConditions(ctx context.Context) (*models.ReleaseConditions, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT inactivity_days, required_trustees, last_activity, released, release_timestamp
		 FROM release_conditions WHERE id = 1`)
	var c models.ReleaseConditions
	if err := row.Scan(&c.InactivityThresholdDays, &c.RequiredTrusteeCount, &c.LastActivity, &c.Released, &c.ReleaseTimestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.LastActivity = c.LastActivity.UTC()
	c.ReleaseTimestamp = utcPtr(c.ReleaseTimestamp)
	return &c, nil
}

func (p *PostgresBackend) PutReleaseConditions(ctx context.Context, c *models.ReleaseConditions) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO release_conditions (id, inactivity_days, required_trustees, last_activity, released, release_timestamp)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET inactivity_days = EXCLUDED.inactivity_days,
		     required_trustees = EXCLUDED.required_trustees, last_activity = EXCLUDED.last_activity,
		     released = EXCLUDED.released, release_timestamp = EXCLUDED.release_timestamp`,
		c.InactivityThresholdDays, c.RequiredTrusteeCount, c.LastActivity, c.Released, c.ReleaseTimestamp,
	)
	return err
}

// --- Email settings ---

func (p *PostgresBackend) GetEmailSettings(ctx context.Context) (*models.EmailSettings, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT from_address, backup_address, backup_frequency, backup_last_sent FROM email_settings WHERE id = 1`)
	var e models.EmailSettings
	var addr *string
	var freq *int
	var lastSent *time.Time
	if err := row.Scan(&e.FromAddress, &addr, &freq, &lastSent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if addr != nil {
		e.Backup = &models.BackupEmail{Address: *addr, LastSent: utcPtr(lastSent)}
		if freq != nil {
			e.Backup.FrequencyDays = *freq
		}
	}
	return &e, nil
}

func (p *PostgresBackend) PutEmailSettings(ctx context.Context, e *models.EmailSettings) error {
	var addr *string
	var freq *int
	var lastSent *time.Time
	if e.Backup != nil {
		addr = &e.Backup.Address
		freq = &e.Backup.FrequencyDays
		lastSent = e.Backup.LastSent
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO email_settings (id, from_address, backup_address, backup_frequency, backup_last_sent)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET from_address = EXCLUDED.from_address,
		     backup_address = EXCLUDED.backup_address, backup_frequency = EXCLUDED.backup_frequency,
		     backup_last_sent = EXCLUDED.backup_last_sent`,
		e.FromAddress, addr, freq, lastSent,
	)
	return err
}

func (p *PostgresBackend) deleteByID(ctx context.Context, query, id string) error {
	tag, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
