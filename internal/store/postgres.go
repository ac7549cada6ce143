package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/visibility-engine/internal/db"
	"github.com/sells-group/visibility-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot path (one insert per scan, one spend append
// and one rollup per gated call).
var preparedStatements = map[string]string{
	"insert_scan_result": `INSERT INTO scan_results (id, query_id, brand_id, model, response_text, brand_mentioned, brand_position, mention_context, competitors_mentioned, citations, brand_in_citations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (query_id, model, created_at) DO NOTHING`,
	"insert_spend_record": `INSERT INTO spend_records (id, brand_id, tenant_id, model, cost_cents, month_key, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"monthly_spend":       `SELECT COALESCE(SUM(cost_cents), 0) FROM spend_records WHERE brand_id = $1 AND month_key = $2`,
	"get_brand":           `SELECT id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at FROM brands WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., competitor bulk import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id                    TEXT PRIMARY KEY,
	tenant_id             TEXT NOT NULL,
	name                  TEXT NOT NULL,
	domain                TEXT NOT NULL,
	is_paused             BOOLEAN NOT NULL DEFAULT FALSE,
	auto_verify_citations BOOLEAN NOT NULL DEFAULT TRUE,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS competitors (
	id        TEXT PRIMARY KEY,
	brand_id  TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	name      TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (brand_id, name)
);

CREATE TABLE IF NOT EXISTS queries (
	id           TEXT PRIMARY KEY,
	brand_id     TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	text         TEXT NOT NULL,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	priority     INTEGER NOT NULL DEFAULT 0,
	funnel_stage TEXT NOT NULL DEFAULT '',
	prompt_score INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS scan_results (
	id                    TEXT PRIMARY KEY,
	query_id              TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
	brand_id              TEXT NOT NULL,
	model                 TEXT NOT NULL,
	response_text         TEXT NOT NULL,
	brand_mentioned       BOOLEAN NOT NULL,
	brand_position        INTEGER,
	mention_context       TEXT NOT NULL DEFAULT '',
	competitors_mentioned JSONB NOT NULL DEFAULT '[]',
	citations             JSONB,
	brand_in_citations    BOOLEAN,
	created_at            TIMESTAMPTZ NOT NULL,
	UNIQUE (query_id, model, created_at)
);

CREATE TABLE IF NOT EXISTS content_gaps (
	id                     TEXT PRIMARY KEY,
	brand_id               TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	query_id               TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
	source_query           TEXT NOT NULL,
	status                 TEXT NOT NULL DEFAULT 'identified',
	response_memo_id       TEXT,
	content_published_at   TIMESTAMPTZ,
	time_to_citation_hours DOUBLE PRECISION,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_content_gaps_open
	ON content_gaps(query_id) WHERE status <> 'verified';

CREATE TABLE IF NOT EXISTS verification_attempts (
	id                   TEXT PRIMARY KEY,
	gap_id               TEXT NOT NULL REFERENCES content_gaps(id) ON DELETE CASCADE,
	attempt              INTEGER NOT NULL,
	models_with_citation JSONB NOT NULL DEFAULT '[]',
	models_with_mention  JSONB NOT NULL DEFAULT '[]',
	verified             BOOLEAN NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (gap_id, attempt)
);

CREATE TABLE IF NOT EXISTS spend_records (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL,
	tenant_id  TEXT NOT NULL,
	model      TEXT NOT NULL DEFAULT '',
	cost_cents INTEGER NOT NULL,
	month_key  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_spend_records_brand_month ON spend_records(brand_id, month_key);

CREATE TABLE IF NOT EXISTS budget_policies (
	brand_id          TEXT PRIMARY KEY REFERENCES brands(id) ON DELETE CASCADE,
	monthly_cap_cents INTEGER,
	alert_at_percent  INTEGER NOT NULL DEFAULT 80,
	pause_at_cap      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS budget_alerts (
	id          TEXT PRIMARY KEY,
	brand_id    TEXT NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
	month_key   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	spent_cents INTEGER NOT NULL,
	cap_cents   INTEGER NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (brand_id, month_key, kind)
);

CREATE INDEX IF NOT EXISTS idx_scan_results_brand_created ON scan_results(brand_id, created_at);
CREATE INDEX IF NOT EXISTS idx_scan_results_query_created ON scan_results(query_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_content_gaps_brand_status ON content_gaps(brand_id, status);
CREATE INDEX IF NOT EXISTS idx_queries_brand_active ON queries(brand_id, is_active);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Brands ---

func (s *PostgresStore) CreateBrand(ctx context.Context, b *model.Brand) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO brands (id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.TenantID, b.Name, b.Domain, b.IsPaused, b.AutoVerifyCitations, b.CreatedAt, b.UpdatedAt)
	return eris.Wrap(err, "postgres: create brand")
}

func (s *PostgresStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	var b model.Brand
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at FROM brands WHERE id = $1`, id).
		Scan(&b.ID, &b.TenantID, &b.Name, &b.Domain, &b.IsPaused, &b.AutoVerifyCitations, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get brand %s", id)
	}
	return &b, nil
}

func (s *PostgresStore) ListActiveBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, domain, is_paused, auto_verify_citations, created_at, updated_at FROM brands WHERE NOT is_paused ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		if err := rows.Scan(&b.ID, &b.TenantID, &b.Name, &b.Domain, &b.IsPaused, &b.AutoVerifyCitations, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "postgres: list active brands")
}

func (s *PostgresStore) PauseBrand(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE brands SET is_paused = TRUE, updated_at = $2 WHERE id = $1 AND NOT is_paused`,
		id, time.Now().UTC())
	if err != nil {
		return false, eris.Wrapf(err, "postgres: pause brand %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ResumeBrand(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE brands SET is_paused = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	return eris.Wrapf(err, "postgres: resume brand %s", id)
}

// --- Competitors ---

func (s *PostgresStore) ListCompetitors(ctx context.Context, brandID string) ([]model.Competitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, name, is_active FROM competitors WHERE brand_id = $1 ORDER BY name`, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list competitors")
	}
	defer rows.Close()

	var comps []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.BrandID, &c.Name, &c.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan competitor")
		}
		comps = append(comps, c)
	}
	return comps, eris.Wrap(rows.Err(), "postgres: list competitors")
}

func (s *PostgresStore) UpsertCompetitors(ctx context.Context, brandID string, names []string) (int64, error) {
	rows := make([][]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, []any{uuid.NewString(), brandID, name, true})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "competitors",
		Columns:      []string{"id", "brand_id", "name", "is_active"},
		ConflictKeys: []string{"brand_id", "name"},
		UpdateCols:   []string{"is_active"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert competitors")
}

// --- Queries ---

func (s *PostgresStore) CreateQuery(ctx context.Context, q *model.Query) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO queries (id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.BrandID, q.Text, q.IsActive, q.Priority, string(q.FunnelStage), q.PromptScore, q.CreatedAt)
	return eris.Wrap(err, "postgres: create query")
}

func (s *PostgresStore) ListActiveQueries(ctx context.Context, brandID string) ([]model.Query, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at FROM queries WHERE brand_id = $1 AND is_active ORDER BY priority DESC, created_at`, brandID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active queries")
	}
	defer rows.Close()
	return scanQueries(rows)
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (*model.Query, error) {
	var q model.Query
	var stage string
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, text, is_active, priority, funnel_stage, prompt_score, created_at FROM queries WHERE id = $1`, id).
		Scan(&q.ID, &q.BrandID, &q.Text, &q.IsActive, &q.Priority, &stage, &q.PromptScore, &q.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get query %s", id)
	}
	q.FunnelStage = model.FunnelStage(stage)
	return &q, nil
}

func (s *PostgresStore) UpdatePromptScore(ctx context.Context, queryID string, score int) error {
	_, err := s.pool.Exec(ctx, `UPDATE queries SET prompt_score = $1 WHERE id = $2`, score, queryID)
	return eris.Wrapf(err, "postgres: update prompt score for %s", queryID)
}

func scanQueries(rows pgx.Rows) ([]model.Query, error) {
	var queries []model.Query
	for rows.Next() {
		var q model.Query
		var stage string
		if err := rows.Scan(&q.ID, &q.BrandID, &q.Text, &q.IsActive, &q.Priority, &stage, &q.PromptScore, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan query")
		}
		q.FunnelStage = model.FunnelStage(stage)
		queries = append(queries, q)
	}
	return queries, eris.Wrap(rows.Err(), "postgres: scan queries")
}

// --- Scan results ---

func (s *PostgresStore) InsertScanResult(ctx context.Context, r *model.ScanResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	comps, err := json.Marshal(orEmpty(r.CompetitorsMentioned))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal competitors mentioned")
	}
	var cites []byte
	if r.Citations != nil {
		cites, err = json.Marshal(r.Citations)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal citations")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scan_results (id, query_id, brand_id, model, response_text, brand_mentioned, brand_position, mention_context, competitors_mentioned, citations, brand_in_citations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (query_id, model, created_at) DO NOTHING`,
		r.ID, r.QueryID, r.BrandID, r.Model, r.ResponseText, r.BrandMentioned, r.BrandPosition, r.MentionContext, comps, cites, r.BrandInCitations, r.CreatedAt)
	return eris.Wrap(err, "postgres: insert scan result")
}

func (s *PostgresStore) QueryScanAggregates(ctx context.Context, queryID string, since time.Time) (*ScanAggregates, error) {
	var agg ScanAggregates
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COALESCE(AVG(COALESCE(jsonb_array_length(citations), 0)), 0),
			COALESCE(AVG(jsonb_array_length(competitors_mentioned)), 0)
		FROM scan_results WHERE query_id = $1 AND created_at >= $2`,
		queryID, since).
		Scan(&agg.Scans, &agg.AvgCitations, &agg.AvgCompetitors)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scan aggregates for %s", queryID)
	}
	return &agg, nil
}

// --- Content gaps ---

func (s *PostgresStore) CreateGap(ctx context.Context, g *model.ContentGap) error {
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

	// The partial unique index keeps one open gap per query; re-identifying
	// an already-open gap is a no-op.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_gaps (id, brand_id, query_id, source_query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query_id) WHERE status <> 'verified' DO NOTHING`,
		g.ID, g.BrandID, g.QueryID, g.SourceQuery, string(g.Status), g.CreatedAt, g.UpdatedAt)
	return eris.Wrap(err, "postgres: create gap")
}

func (s *PostgresStore) GetGap(ctx context.Context, id string) (*model.ContentGap, error) {
	var g model.ContentGap
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, query_id, source_query, status, response_memo_id, content_published_at, time_to_citation_hours, created_at, updated_at FROM content_gaps WHERE id = $1`, id).
		Scan(&g.ID, &g.BrandID, &g.QueryID, &g.SourceQuery, &status, &g.ResponseMemoID, &g.ContentPublishedAt, &g.TimeToCitationHours, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get gap %s", id)
	}
	g.Status = model.GapStatus(status)

	attempts, err := s.listAttempts(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Attempts = attempts
	return &g, nil
}

func (s *PostgresStore) listAttempts(ctx context.Context, gapID string) ([]model.VerificationAttempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, gap_id, attempt, models_with_citation, models_with_mention, verified, created_at FROM verification_attempts WHERE gap_id = $1 ORDER BY attempt`, gapID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list attempts for %s", gapID)
	}
	defer rows.Close()

	var attempts []model.VerificationAttempt
	for rows.Next() {
		var a model.VerificationAttempt
		var withCitation, withMention []byte
		if err := rows.Scan(&a.ID, &a.GapID, &a.Attempt, &withCitation, &withMention, &a.Verified, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		if err := json.Unmarshal(withCitation, &a.ModelsWithCitation); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal models_with_citation")
		}
		if err := json.Unmarshal(withMention, &a.ModelsWithMention); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal models_with_mention")
		}
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list attempts")
}

func (s *PostgresStore) ListGaps(ctx context.Context, brandID string, filter GapFilter) ([]model.ContentGap, error) {
	sql := `SELECT id, brand_id, query_id, source_query, status, response_memo_id, content_published_at, time_to_citation_hours, created_at, updated_at FROM content_gaps WHERE brand_id = $1`
	args := []any{brandID}
	if filter.Status != "" {
		sql += ` AND status = $2`
		args = append(args, string(filter.Status))
	}
	sql += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		sql += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list gaps")
	}
	defer rows.Close()

	var gaps []model.ContentGap
	for rows.Next() {
		var g model.ContentGap
		var status string
		if err := rows.Scan(&g.ID, &g.BrandID, &g.QueryID, &g.SourceQuery, &status, &g.ResponseMemoID, &g.ContentPublishedAt, &g.TimeToCitationHours, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gap")
		}
		g.Status = model.GapStatus(status)
		gaps = append(gaps, g)
	}
	return gaps, eris.Wrap(rows.Err(), "postgres: list gaps")
}

func (s *PostgresStore) MarkGapContentCreated(ctx context.Context, gapID, memoID string, publishedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE content_gaps SET status = 'content_created', response_memo_id = $2, content_published_at = $3, updated_at = $4 WHERE id = $1 AND status = 'identified'`,
		gapID, memoID, publishedAt.UTC(), time.Now().UTC())
	return eris.Wrapf(err, "postgres: mark gap %s content_created", gapID)
}

func (s *PostgresStore) MarkGapVerified(ctx context.Context, gapID string, timeToCitationHours float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE content_gaps SET status = 'verified', time_to_citation_hours = $2, updated_at = $3 WHERE id = $1 AND status = 'content_created'`,
		gapID, timeToCitationHours, time.Now().UTC())
	return eris.Wrapf(err, "postgres: mark gap %s verified", gapID)
}

func (s *PostgresStore) AppendVerificationAttempt(ctx context.Context, a *model.VerificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	withCitation, err := json.Marshal(orEmpty(a.ModelsWithCitation))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal models_with_citation")
	}
	withMention, err := json.Marshal(orEmpty(a.ModelsWithMention))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal models_with_mention")
	}

	// Attempts are immutable; replaying the same attempt number is a no-op.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_attempts (id, gap_id, attempt, models_with_citation, models_with_mention, verified, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gap_id, attempt) DO NOTHING`,
		a.ID, a.GapID, a.Attempt, withCitation, withMention, a.Verified, a.CreatedAt)
	return eris.Wrap(err, "postgres: append verification attempt")
}

// --- Spend ledger and budget policy ---

func (s *PostgresStore) InsertSpendRecord(ctx context.Context, r *model.SpendRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spend_records (id, brand_id, tenant_id, model, cost_cents, month_key, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.BrandID, r.TenantID, r.Model, r.CostCents, model.MonthKey(r.CreatedAt), r.CreatedAt)
	return eris.Wrap(err, "postgres: insert spend record")
}

func (s *PostgresStore) MonthlySpendCents(ctx context.Context, brandID, monthKey string) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM spend_records WHERE brand_id = $1 AND month_key = $2`,
		brandID, monthKey).Scan(&total)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: monthly spend for %s", brandID)
	}
	return total, nil
}

func (s *PostgresStore) GetBudgetPolicy(ctx context.Context, brandID string) (*model.BudgetPolicy, error) {
	var p model.BudgetPolicy
	err := s.pool.QueryRow(ctx,
		`SELECT brand_id, monthly_cap_cents, alert_at_percent, pause_at_cap FROM budget_policies WHERE brand_id = $1`, brandID).
		Scan(&p.BrandID, &p.MonthlyCapCents, &p.AlertAtPercent, &p.PauseAtCap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get budget policy for %s", brandID)
	}
	return &p, nil
}

func (s *PostgresStore) SetBudgetPolicy(ctx context.Context, p *model.BudgetPolicy) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budget_policies (brand_id, monthly_cap_cents, alert_at_percent, pause_at_cap) VALUES ($1, $2, $3, $4)
		ON CONFLICT (brand_id) DO UPDATE SET monthly_cap_cents = EXCLUDED.monthly_cap_cents, alert_at_percent = EXCLUDED.alert_at_percent, pause_at_cap = EXCLUDED.pause_at_cap`,
		p.BrandID, p.MonthlyCapCents, p.AlertAtPercent, p.PauseAtCap)
	return eris.Wrap(err, "postgres: set budget policy")
}

func (s *PostgresStore) TryInsertBudgetAlert(ctx context.Context, a *model.BudgetAlert) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO budget_alerts (id, brand_id, month_key, kind, spent_cents, cap_cents, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (brand_id, month_key, kind) DO NOTHING`,
		a.ID, a.BrandID, a.MonthKey, string(a.Kind), a.SpentCents, a.CapCents, a.CreatedAt)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert budget alert")
	}
	return tag.RowsAffected() == 1, nil
}

// --- Monitoring ---

func (s *PostgresStore) GetBrandStats(ctx context.Context, brandID string, since time.Time) (*BrandStats, error) {
	var stats BrandStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE brand_mentioned),
			COUNT(*) FILTER (WHERE brand_in_citations)
		FROM scan_results WHERE brand_id = $1 AND created_at >= $2`,
		brandID, since).Scan(&stats.Scans, &stats.Mentioned, &stats.Cited)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: brand stats for %s", brandID)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_cents), 0) FROM spend_records WHERE brand_id = $1 AND created_at >= $2`,
		brandID, since).Scan(&stats.SpendCents)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: brand spend for %s", brandID)
	}
	return &stats, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
