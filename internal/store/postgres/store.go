// Package postgres provides the Postgres-backed store implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardkeeper/boardkeeper/internal/identity"
	"github.com/boardkeeper/boardkeeper/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// tableColumns maps each table onto its physical columns. The index column
// carries the range scan; siteID/siteRef/jobID/linked are "" or empty when
// the table does not have them.
type tableColumns struct {
	index   string
	siteID  string
	siteRef string
	jobID   string
	linked  []string
}

// maxLinked is the widest linked-URL column set across the table family;
// narrower tables are padded with NULLs so every scan row has one shape.
const maxLinked = 2

var tableLayout = map[store.Table]tableColumns{
	store.TableJobs:          {index: "url", siteID: "site_id"},
	store.TableJobDetails:    {index: "url", jobID: "job_id"},
	store.TableScrapes:       {index: "source_url", siteID: "site_id", linked: []string{"listing_url", "api_url"}},
	store.TableScrapeErrors:  {index: "source_url", siteRef: "site_ref"},
	store.TableSnapshots:     {index: "url"},
	store.TableChanges:       {index: "url"},
	store.TableSourceHealth:  {index: "site_url", siteID: "site_id"},
	store.TableSearchHits:    {index: "url"},
	store.TableWebhookEvents: {index: "source_url", siteRef: "site_ref"},
	store.TableNotes:         {index: "site_url", siteRef: "site_ref"},
}

// Store implements store.Store on Postgres. Range scans use keyset
// pagination on (index column, id), so resuming with a cursor never
// re-reads rows already returned.
type Store struct {
	pool dbPool
}

// New connects a pool and wraps it in a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func layoutFor(table store.Table) (tableColumns, error) {
	cols, ok := tableLayout[table]
	if !ok || !validTableName.MatchString(string(table)) {
		return tableColumns{}, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

// ScanRange reads one keyset page of a table's URL-indexed range.
func (s *Store) ScanRange(
	ctx context.Context,
	table store.Table,
	lo, hi, cursor string,
	limit int,
) (store.Page, error) {
	cols, err := layoutFor(table)
	if err != nil {
		return store.Page{}, err
	}
	if limit <= 0 {
		return store.Page{}, errors.New("limit must be > 0")
	}
	pos, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.Page{}, err
	}

	sel := []string{"id", cols.index}
	sel = append(sel, nullable(cols.siteID), nullable(cols.siteRef), nullable(cols.jobID))
	for i := 0; i < maxLinked; i++ {
		if i < len(cols.linked) {
			sel = append(sel, cols.linked[i])
		} else {
			sel = append(sel, "NULL::text")
		}
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE %s >= $1 AND %s < $2 AND (%s, id) > ($3, $4)
ORDER BY %s, id
LIMIT $5`,
		strings.Join(sel, ", "), table, cols.index, cols.index, cols.index, cols.index)

	rows, err := s.pool.Query(ctx, query, lo, hi, pos.Key, pos.ID, limit+1)
	if err != nil {
		return store.Page{}, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	records := make([]store.Record, 0, limit)
	for rows.Next() {
		var (
			id, indexed            string
			siteID, siteRef, jobID *string
			linkedA, linkedB       *string
		)
		if err := rows.Scan(&id, &indexed, &siteID, &siteRef, &jobID, &linkedA, &linkedB); err != nil {
			return store.Page{}, fmt.Errorf("scan %s row: %w", table, err)
		}
		records = append(records, buildRecord(id, indexed, siteID, siteRef, jobID, linkedA, linkedB))
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, fmt.Errorf("iterate %s rows: %w", table, err)
	}

	page := store.Page{IsDone: true}
	if len(records) > limit {
		page.IsDone = false
		records = records[:limit]
	}
	page.Records = records
	if n := len(records); n > 0 {
		last := records[n-1]
		page.ContinueCursor = store.Cursor{Key: last.IndexedURL, ID: last.ID}.Encode()
	}
	return page, nil
}

func nullable(col string) string {
	if col == "" {
		return "NULL::text"
	}
	return col
}

func buildRecord(id, indexed string, siteID, siteRef, jobID, linkedA, linkedB *string) store.Record {
	rec := store.Record{ID: id, IndexedURL: indexed}
	if siteID != nil {
		// A malformed reference leaves SiteID at uuid.Nil; the wipe
		// predicate then falls through to the URL checks.
		if parsed, err := uuid.Parse(*siteID); err == nil {
			rec.SiteID = parsed
		}
	}
	if siteRef != nil {
		rec.SiteRef = *siteRef
	}
	if jobID != nil {
		rec.JobID = *jobID
	}
	for _, linked := range []*string{linkedA, linkedB} {
		if linked != nil && *linked != "" {
			rec.LinkedURLs = append(rec.LinkedURLs, *linked)
		}
	}
	return rec
}

// Delete removes a row by ID. Absent rows are not an error.
func (s *Store) Delete(ctx context.Context, table store.Table, id string) error {
	if _, err := layoutFor(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

// JobDetailByJob finds the zero-or-one job_details row owned by a job.
func (s *Store) JobDetailByJob(ctx context.Context, jobID string) (*store.Record, error) {
	query := `SELECT id, url, job_id FROM job_details WHERE job_id = $1 LIMIT 1`
	var rec store.Record
	err := s.pool.QueryRow(ctx, query, jobID).Scan(&rec.ID, &rec.IndexedURL, &rec.JobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job detail: %w", err)
	}
	return &rec, nil
}

// Insert adds a dependent row to a table.
func (s *Store) Insert(ctx context.Context, table store.Table, rec store.Record) error {
	cols, err := layoutFor(table)
	if err != nil {
		return err
	}
	names := []string{"id", cols.index}
	args := []any{rec.ID, rec.IndexedURL}
	if cols.siteID != "" {
		names = append(names, cols.siteID)
		if rec.SiteID == uuid.Nil {
			args = append(args, nil)
		} else {
			args = append(args, rec.SiteID.String())
		}
	}
	if cols.siteRef != "" {
		names = append(names, cols.siteRef)
		args = append(args, rec.SiteRef)
	}
	if cols.jobID != "" {
		names = append(names, cols.jobID)
		args = append(args, rec.JobID)
	}
	for i, linked := range cols.linked {
		names = append(names, linked)
		if i < len(rec.LinkedURLs) {
			args = append(args, rec.LinkedURLs[i])
		} else {
			args = append(args, nil)
		}
	}
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

const sourceColumns = `id, url, declared_type, provider, slug, scrape_url,
canonical_key, display_name, pattern, enabled, schedule_id, created_at, resolved_at`

// ListSources returns all configured sources.
func (s *Store) ListSources(ctx context.Context) ([]store.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources ORDER BY id`, sourceColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []store.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// SourceByCanonicalKey finds the source registered under a canonical key.
func (s *Store) SourceByCanonicalKey(ctx context.Context, key string) (*store.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE canonical_key = $1 LIMIT 1`, sourceColumns)
	src, err := scanSource(s.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// SourceByID fetches a source by ID.
func (s *Store) SourceByID(ctx context.Context, id uuid.UUID) (*store.Source, error) {
	query := fmt.Sprintf(`SELECT %s FROM sources WHERE id = $1 LIMIT 1`, sourceColumns)
	src, err := scanSource(s.pool.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// SaveSource upserts a source by ID.
func (s *Store) SaveSource(ctx context.Context, src store.Source) error {
	query := `
INSERT INTO sources (
	id, url, declared_type, provider, slug, scrape_url,
	canonical_key, display_name, pattern, enabled, schedule_id,
	created_at, resolved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	declared_type = EXCLUDED.declared_type,
	provider = EXCLUDED.provider,
	slug = EXCLUDED.slug,
	scrape_url = EXCLUDED.scrape_url,
	canonical_key = EXCLUDED.canonical_key,
	display_name = EXCLUDED.display_name,
	pattern = EXCLUDED.pattern,
	enabled = EXCLUDED.enabled,
	schedule_id = EXCLUDED.schedule_id,
	resolved_at = EXCLUDED.resolved_at`
	_, err := s.pool.Exec(ctx, query,
		src.ID.String(),
		src.URL,
		src.DeclaredType,
		string(src.Provider),
		src.Slug,
		src.ScrapeURL,
		src.CanonicalKey,
		src.DisplayName,
		src.Pattern,
		src.Enabled,
		src.ScheduleID,
		src.CreatedAt,
		src.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	return nil
}

func scanSource(row pgx.Row) (store.Source, error) {
	var (
		src      store.Source
		id       string
		provider string
	)
	err := row.Scan(
		&id,
		&src.URL,
		&src.DeclaredType,
		&provider,
		&src.Slug,
		&src.ScrapeURL,
		&src.CanonicalKey,
		&src.DisplayName,
		&src.Pattern,
		&src.Enabled,
		&src.ScheduleID,
		&src.CreatedAt,
		&src.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Source{}, err
		}
		return store.Source{}, fmt.Errorf("scan source: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return store.Source{}, fmt.Errorf("parse source id %q: %w", id, err)
	}
	src.ID = parsed
	src.Provider = identity.Provider(provider)
	return src, nil
}
