package leadstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/db"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Lead source columns in table order.
var leadColumns = []string{"id", "business", "website", "email", "phone", "instagram", "facebook", "linkedin", "address", "owner_name", "review_summary"}

const leadSchema = `
CREATE TABLE IF NOT EXISTS leads (
	id             TEXT PRIMARY KEY,
	business       TEXT NOT NULL DEFAULT '',
	website        TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	instagram      TEXT NOT NULL DEFAULT '',
	facebook       TEXT NOT NULL DEFAULT '',
	linkedin       TEXT NOT NULL DEFAULT '',
	address        TEXT NOT NULL DEFAULT '',
	owner_name     TEXT NOT NULL DEFAULT '',
	review_summary TEXT NOT NULL DEFAULT '',
	position       BIGSERIAL
);

CREATE TABLE IF NOT EXISTS outreach_personalisation (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	owner        TEXT NOT NULL DEFAULT '',
	dm_opener    TEXT NOT NULL DEFAULT '',
	call_script  TEXT NOT NULL DEFAULT '',
	email_opener TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps leads in Postgres. The upsert is backend-native
// (INSERT ... ON CONFLICT), so no read-modify-write race exists here.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore over an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the lead tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, leadSchema)
	return eris.Wrap(err, "leadstore: ensure schema")
}

func (s *PostgresStore) ReadAllLeads(ctx context.Context) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business, website, email, phone, instagram, facebook, linkedin, address, owner_name, review_summary FROM leads ORDER BY position`,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "leadstore: read leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var l model.Lead
		if err := rows.Scan(&l.ID, &l.Business, &l.Website, &l.Email, &l.Phone, &l.Instagram, &l.Facebook, &l.LinkedIn, &l.Address, &l.OwnerName, &l.ReviewSummary); err != nil {
			return nil, eris.Wrap(err, "leadstore: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "leadstore: iterate leads")
}

func (s *PostgresStore) ReadProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM outreach_personalisation`)
	if err != nil {
		if isUndefinedTable(err) {
			return map[string]struct{}{}, nil
		}
		return nil, eris.Wrap(err, "leadstore: read processed ids")
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "leadstore: scan processed id")
		}
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, eris.Wrap(rows.Err(), "leadstore: iterate processed ids")
}

func (s *PostgresStore) Upsert(ctx context.Context, p model.Personalization) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outreach_personalisation (id, name, owner, dm_opener, call_script, email_opener, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			dm_opener = EXCLUDED.dm_opener,
			call_script = EXCLUDED.call_script,
			email_opener = EXCLUDED.email_opener,
			notes = EXCLUDED.notes,
			updated_at = now()`,
		p.LeadID, p.Name, p.Owner, p.DMOpener, p.CallScript, p.EmailOpener, p.Notes,
	)
	return eris.Wrapf(err, "leadstore: upsert %s", p.LeadID)
}

// ImportLeads bulk-loads source rows via a temp table. The leads table is
// keyed by identifier, so rows without one are dropped with a warning.
func (s *PostgresStore) ImportLeads(ctx context.Context, leads []model.Lead) (int, error) {
	rows := make([][]any, 0, len(leads))
	seen := make(map[string]struct{}, len(leads))
	skipped := 0
	for _, l := range leads {
		if l.ID == "" {
			skipped++
			continue
		}
		// ON CONFLICT cannot touch the same row twice in one statement.
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		rows = append(rows, []any{l.ID, l.Business, l.Website, l.Email, l.Phone, l.Instagram, l.Facebook, l.LinkedIn, l.Address, l.OwnerName, l.ReviewSummary})
	}
	if skipped > 0 {
		zap.L().Warn("leadstore: dropping leads without identifiers", zap.Int("count", skipped))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "leads",
		Columns:      leadColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "leadstore: import leads")
	}
	return int(n), nil
}

// isUndefinedTable reports whether err is Postgres undefined_table (42P01).
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
