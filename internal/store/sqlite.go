package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/visibility-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// single-operator deployment path; Postgres is the hosted one.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id                    TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL,
	name                  TEXT NOT NULL,
	domain                TEXT NOT NULL,
	is_paused             INTEGER NOT NULL DEFAULT 0,
	auto_verify_citations INTEGER NOT NULL DEFAULT 1,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS competitors (
	id        TEXT PRIMARY KEY,
	brand_id  TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	UNIQUE (brand_id, name)
);

CREATE TABLE IF NOT EXISTS queries (
	id           TEXT PRIMARY KEY,
	brand_id     TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	text         TEXT NOT NULL,
	is_active    INTEGER NOT NULL DEFAULT 1,
	priority     INTEGER NOT NULL DEFAULT 0,
	funnel_stage TEXT NOT NULL DEFAULT '',
	prompt_score INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_results (
	id                    TEXT PRIMARY KEY,
	query_id              TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
	brand_id              TEXT NOT NULL,
	model                 TEXT NOT NULL,
	response_text         TEXT NOT NULL,
	brand_mentioned       INTEGER NOT NULL,
	brand_position        INTEGER,
	mention_context       TEXT NOT NULL DEFAULT '',
	competitors_mentioned TEXT NOT NULL DEFAULT '[]',
	citations             TEXT,
	brand_in_citations    INTEGER,
	created_at            DATETIME NOT NULL,
	UNIQUE (query_id, model, created_at)
);

CREATE TABLE IF NOT EXISTS content_gaps (
	id                     TEXT PRIMARY KEY,
	brand_id               TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	query_id               TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
	source_query           TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'identified',
	response_memo_id       TEXT,
	content_published_at   DATETIME,
	time_to_citation_hours REAL,
	created_at             DATETIME NOT NULL,
	updated_at             DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_content_gaps_open
	ON content_gaps(query_id) WHERE status <> 'verified';

CREATE TABLE IF NOT EXISTS verification_attempts (
	id                   TEXT PRIMARY KEY,
	gap_id               TEXT NOT NULL REFERENCES content_gaps(id) ON DELETE CASCADE,
	attempt              INTEGER NOT NULL,
	models_with_citation TEXT NOT NULL DEFAULT '[]',
	models_with_mention  TEXT NOT NULL DEFAULT '[]',
	verified             INTEGER NOT NULL,
	created_at           DATETIME NOT NULL,
	UNIQUE (gap_id, attempt)
);

CREATE TABLE IF NOT EXISTS spend_records (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	tenant_id  TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	cost_cents INTEGER NOT NULL,
	month_key  TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spend_records_brand_month ON spend_records(brand_id, month_key);

CREATE TABLE IF NOT EXISTS budget_policies (
	brand_id          TEXT PRIMARY KEY REFERENCES brands(id) ON DELETE CASCADE,
	monthly_cap_cents INTEGER,
	alert_at_percent  INTEGER NOT NULL DEFAULT 80,
	pause_at_cap      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS budget_alerts (
	id          TEXT PRIMARY KEY,
	brand_id    TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	month_key   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	spent_cents INTEGER NOT NULL,
	cap_cents   INTEGER NOT NULL,
	created_at  DATETIME NOT NULL,
	UNIQUE (brand_id, month_key, kind)
);

CREATE INDEX IF NOT EXISTS idx_scan_results_brand_created ON scan_results(brand_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scan_results_query_created ON scan_results(query_id, created_at);
CREATE INDEX IF NOT EXISTS idx_content_gaps_brand_status ON content_gaps(brand_id, status);
CREATE INDEX IF NOT EXISTS idx_queries_brand_active ON queries(brand_id, is_active);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Brands ---

func (s *SQLiteStore) CreateBrand(ctx context.Context, b *model.Brand) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brands (id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.Name, b.Domain, b.IsPaused, b.AutoVerifyCitations, b.CreatedAt, b.UpdatedAt)
	return eris.Wrap(err, "sqlite: create brand")
}

func (s *SQLiteStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	var b model.Brand
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at FROM brands WHERE id = ?`, id).
		Scan(&b.ID, &b.TenantID, &b.Name, &b.Domain, &b.IsPaused, &b.AutoVerifyCitations, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get brand %s", id)
	}
	return &b, nil
}

func (s *SQLiteStore) ListActiveBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at FROM brands WHERE is_paused = 0 ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		if err := rows.Scan(&b.ID, &b.TenantID, &b.Name, &b.Domain, &b.IsPaused, &b.AutoVerifyCitations, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "sqlite: list active brands")
}

func (s *SQLiteStore) PauseBrand(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET is_paused = 1, updated_at = ? WHERE id = ? AND is_paused = 0`,
		time.Now().UTC(), id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: pause brand %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: pause brand rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ResumeBrand(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE brands SET is_paused = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	return eris.Wrapf(err, "sqlite: resume brand %s", id)
}

// --- Competitors ---

func (s *SQLiteStore) ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, name, is_active FROM competitors WHERE brand_id = ? ORDER BY name`, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list competitors")
	}
	defer rows.Close()

	var comps []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Name, &c.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan competitor")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "sqlite: list competitors")
}

func (s *SQLiteStore) UpsertCompetitors(ctx context.Context, brandID string, names []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert competitors: begin tx")
	}
	defer tx.Rollback()

	var total int64
	for _, name := range names {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO competitors (id, brand_id, name, is_active) VALUES (?, ?, ?, 1)
			ON CONFLICT (brand_id, name) DO UPDATE SET is_active = excluded.is_active`,
			uuid.NewString(), brandID, name)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert competitor %s", name)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert competitor rows affected")
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert competitors: commit")
	}
	return total, nil
}

// --- Queries ---

func (s *SQLiteStore) CreateQuery(ctx context.Context, q *model.Query) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.BrandID, q.Text, q.IsActive, q.Priority, string(q.FunnelStage), q.PromptScore, q.CreatedAt)
	return eris.Wrap(err, "sqlite: create query")
}

func (s *SQLiteStore) ListActiveQueries(ctx context.Context, brandID string) ([]model.Query, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at FROM queries WHERE brand_id = ? AND is_active = 1 ORDER BY priority DESC, created_at`, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active queries")
	}
	defer rows.Close()

	var queries []model.Query
	for rows.Next() {
		var q model.Query
		var stage string
		if err := rows.Scan(&q.ID, &q.BrandID, &q.Text, &q.IsActive, &q.Priority, &stage, &q.PromptScore, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan query")
		}
		q.FunnelStage = model.FunnelStage(stage)
		queries = append(queries, q)
	}
	return queries, eris.Wrap(rows.Err(), "sqlite: list active queries")
}

func (s *SQLiteStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	var q model.Query
	var stage string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at FROM queries WHERE id = ?`, id).
		Scan(&q.ID, &q.BrandID, &q.Text, &q.IsActive, &q.Priority, &stage, &q.PromptScore, &q.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get query %s", id)
	}
	q.FunnelStage = model.FunnelStage(stage)
	return &q, nil
}

func (s *SQLiteStore) UpdatePromptScore(ctx context.Context, queryID string, score int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE queries SET prompt_score = ? WHERE id = ?`, score, queryID)
	return eris.Wrapf(err, "sqlite: update prompt score for %s", queryID)
}

// --- Scan results ---

func (s *SQLiteStore) InsertScanResult(ctx context.Context, r *model.ScanResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	comps, err := json.Marshal(orEmpty(r.CompetitorsMentioned))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal competitors mentioned")
	}
	var cites any
	if r.Citations != nil {
		b, err := json.Marshal(r.Citations)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal citations")
		}
		cites = string(b)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_results (id, query_id, brand_id, model, response_text, brand_mentioned, brand_position, mention_context, competitors_mentioned, citations, brand_in_citations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (query_id, model, created_at) DO NOTHING`,
		r.ID, r.QueryID, r.BrandID, r.Model, r.ResponseText, r.BrandMentioned, r.BrandPosition, r.MentionContext, string(comps), cites, r.BrandInCitations, r.CreatedAt)
	return eris.Wrap(err, "sqlite: insert scan result")
}

func (s *SQLiteStore) QueryScanAggregates(ctx context.Context, queryID string, since time.Time) (*ScanAggregates, error) {
	var agg ScanAggregates
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(AVG(COALESCE(json_array_length(citations), 0)), 0),
			COALESCE(AVG(json_array_length(competitors_mentioned)), 0)
		FROM scan_results WHERE query_id = ? AND created_at >= ?`,
		queryID, since).
		Scan(&agg.Scans, &agg.AvgCitations, &agg.AvgCompetitors)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scan aggregates for %s", queryID)
	}
	return &agg, nil
}

// --- Content gaps ---

func (s *SQLiteStore) CreateGap(ctx context.Context, g *model.ContentGap) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if g.Status == "" {
		g.Status = model.GapIdentified
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_gaps (id, brand_id, query_id, source_query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (query_id) WHERE status <> 'verified' DO NOTHING`,
		g.ID, g.BrandID, g.QueryID, g.SourceQuery, string(g.Status), g.CreatedAt, g.UpdatedAt)
	return eris.Wrap(err, "sqlite: create gap")
}

func (s *SQLiteStore) GetGap(ctx context.Context, id string) (*model.ContentGap, error) {
	var g model.ContentGap
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, query_id, source_query, status, response_memo_id, content_published_at, time_to_citation_hours, created_at, updated_at FROM content_gaps WHERE id = ?`, id).
		Scan(&g.ID, &g.BrandID, &g.QueryID, &g.SourceQuery, &status, &g.ResponseMemoID, &g.ContentPublishedAt, &g.TimeToCitationHours, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get gap %s", id)
	}
	g.Status = model.GapStatus(status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gap_id, attempt, models_with_citation, models_with_mention, verified, created_at FROM verification_attempts WHERE gap_id = ? ORDER BY attempt`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list attempts for %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var a model.VerificationAttempt
		var withCitation, withMention string
		if err := rows.Scan(&a.ID, &a.GapID, &a.Attempt, &withCitation, &withMention, &a.Verified, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan attempt")
		}
		if err := json.Unmarshal([]byte(withCitation), &a.ModelsWithCitation); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal models_with_citation")
		}
		if err := json.Unmarshal([]byte(withMention), &a.ModelsWithMention); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal models_with_mention")
		}
		g.Attempts = append(g.Attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	return &g, nil
}

func (s *SQLiteStore) ListGaps(ctx context.Context, brandID string, filter GapFilter) ([]model.ContentGap, error) {
	query := `SELECT id, brand_id, query_id, source_query, status, response_memo_id, content_published_at, time_to_citation_hours, created_at, updated_at FROM content_gaps WHERE brand_id = ?`
	args := []any{brandID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list gaps")
	}
	defer rows.Close()

	var gaps []model.ContentGap
	for rows.Next() {
		var g model.ContentGap
		var status string
		if err := rows.Scan(&g.ID, &g.BrandID, &g.QueryID, &g.SourceQuery, &status, &g.ResponseMemoID, &g.ContentPublishedAt, &g.TimeToCitationHours, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gap")
		}
		g.Status = model.GapStatus(status)
		gaps = append(gaps, g)
	}
	return gaps, eris.Wrap(rows.Err(), "sqlite: list gaps")
}

func (s *SQLiteStore) MarkGapContentCreated(ctx context.Context, gapID, memoID string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_gaps SET status = 'content_created', response_memo_id = ?, content_published_at = ?, updated_at = ? WHERE id = ? AND status = 'identified'`,
		memoID, publishedAt.UTC(), time.Now().UTC(), gapID)
	return eris.Wrapf(err, "sqlite: mark gap %s content_created", gapID)
}

func (s *SQLiteStore) MarkGapVerified(ctx context.Context, gapID string, timeToCitationHours float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_gaps SET status = 'verified', time_to_citation_hours = ?, updated_at = ? WHERE id = ? AND status = 'content_created'`,
		timeToCitationHours, time.Now().UTC(), gapID)
	return eris.Wrapf(err, "sqlite: mark gap %s verified", gapID)
}

func (s *SQLiteStore) AppendVerificationAttempt(ctx context.Context, a *model.VerificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	withCitation, err := json.Marshal(orEmpty(a.ModelsWithCitation))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal models_with_citation")
	}
	withMention, err := json.Marshal(orEmpty(a.ModelsWithMention))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal models_with_mention")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_attempts (id, gap_id, attempt, models_with_citation, models_with_mention, verified, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (gap_id, attempt) DO NOTHING`,
		a.ID, a.GapID, a.Attempt, string(withCitation), string(withMention), a.Verified, a.CreatedAt)
	return eris.Wrap(err, "sqlite: append verification attempt")
}

// --- Spend ledger and budget policy ---

func (s *SQLiteStore) InsertSpendRecord(ctx context.Context, r *model.SpendRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spend_records (id, brand_id, tenant_id, model, cost_cents, month_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BrandID, r.TenantID, r.Model, r.CostCents, model.MonthKey(r.CreatedAt), r.CreatedAt)
	return eris.Wrap(err, "sqlite: insert spend record")
}

func (s *SQLiteStore) MonthlySpendCents(ctx context.Context, brandID, monthKey string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM spend_records WHERE brand_id = ? AND month_key = ?`,
		brandID, monthKey).Scan(&total)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: monthly spend for %s", brandID)
	}
	return total, nil
}

func (s *SQLiteStore) GetBudgetPolicy(ctx context.Context, brandID string) (*model.BudgetPolicy, error) {
	var p model.BudgetPolicy
	err := s.db.QueryRowContext(ctx,
		`SELECT brand_id, monthly_cap_cents, alert_at_percent, pause_at_cap FROM budget_policies WHERE brand_id = ?`, brandID).
		Scan(&p.BrandID, &p.MonthlyCapCents, &p.AlertAtPercent, &p.PauseAtCap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get budget policy for %s", brandID)
	}
	return &p, nil
}

func (s *SQLiteStore) SetBudgetPolicy(ctx context.Context, p *model.BudgetPolicy) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_policies (brand_id, monthly_cap_cents, alert_at_percent, pause_at_cap) VALUES (?, ?, ?, ?)
		ON CONFLICT (brand_id) DO UPDATE SET monthly_cap_cents = excluded.monthly_cap_cents, alert_at_percent = excluded.alert_at_percent, pause_at_cap = excluded.pause_at_cap`,
		p.BrandID, p.MonthlyCapCents, p.AlertAtPercent, p.PauseAtCap)
	return eris.Wrap(err, "sqlite: set budget policy")
}

func (s *SQLiteStore) TryInsertBudgetAlert(ctx context.Context, a *model.BudgetAlert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO budget_alerts (id, brand_id, month_key, kind, spent_cents, cap_cents, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (brand_id, month_key, kind) DO NOTHING`,
		a.ID, a.BrandID, a.MonthKey, string(a.Kind), a.SpentCents, a.CapCents, a.CreatedAt)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert budget alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: budget alert rows affected")
	}
	return n == 1, nil
}

// --- Monitoring ---

func (s *SQLiteStore) GetBrandStats(ctx context.Context, brandID string, since time.Time) (*BrandStats, error) {
	var stats BrandStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(brand_mentioned), 0),
			COALESCE(SUM(CASE WHEN brand_in_citations = 1 THEN 1 ELSE 0 END), 0)
		FROM scan_results WHERE brand_id = ? AND created_at >= ?`,
		brandID, since).Scan(&stats.Scans, &stats.Mentioned, &stats.Cited)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: brand stats for %s", brandID)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM spend_records WHERE brand_id = ? AND created_at >= ?`,
		brandID, since).Scan(&stats.SpendCents)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: brand spend for %s", brandID)
	}
	return &stats, nil
}
