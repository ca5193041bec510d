// Package store persists the engine's durable learning state: source
// credibility, learned patterns, performance records and content lineage.
// Writes retry with exponential backoff; when postgres stays down the
// write is queued in memory and flushed on recovery so a query run never
// blocks on persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/models"
)

// ContentLineage is the durable trace of one delivered draft, kept so a
// later performance record can be correlated back to what produced it.
type ContentLineage struct {
	ContentID   string
	Platform    models.Platform
	InsightTier models.InsightTier
	SourceIDs   []string
	Fallback    bool
	CreatedAt   time.Time
}

// Store wraps postgres access.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	pending []pendingOp
}

type pendingOp struct {
	label string
	run   func(ctx context.Context) error
}

// New opens a postgres connection from configuration.
func New(cfg config.PostgresConfig, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return NewWithDB(db, cfg.Timeout, logger), nil
}

// NewWithDB wraps an existing handle, used by tests with sqlmock.
func NewWithDB(db *sql.DB, timeout time.Duration, logger *log.Logger) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	return &Store{db: db, timeout: timeout, logger: logger}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// write retries the op with backoff; on exhaustion it queues the op for
// a later flush and reports ErrPersistenceUnavailable.
func (s *Store) write(ctx context.Context, label string, op func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = s.timeout

	err := backoff.Retry(func() error {
		return op(ctx)
	}, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}

	s.logger.Printf("%s failed, queueing for flush: %v", label, err)
	s.mu.Lock()
	s.pending = append(s.pending, pendingOp{label: label, run: op})
	s.mu.Unlock()
	return fmt.Errorf("%w: %s: %v", models.ErrPersistenceUnavailable, label, err)
}

// FlushPending replays queued writes. Returns how many remain queued.
func (s *Store) FlushPending(ctx context.Context) int {
	s.mu.Lock()
	queued := s.pending
	s.pending = nil
	s.mu.Unlock()

	var failed []pendingOp
	for _, op := range queued {
		if err := op.run(ctx); err != nil {
			failed = append(failed, op)
			continue
		}
		s.logger.Printf("flushed queued %s", op.label)
	}

	s.mu.Lock()
	s.pending = append(failed, s.pending...)
	remaining := len(s.pending)
	s.mu.Unlock()
	return remaining
}

// PendingWrites reports the degraded-queue depth.
func (s *Store) PendingWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SaveSourceCredibility upserts the learned credibility for a source.
func (s *Store) SaveSourceCredibility(ctx context.Context, sourceID string, credibility float64) error {
	return s.write(ctx, "save source credibility", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sources (id, credibility, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (id) DO UPDATE SET credibility = EXCLUDED.credibility, updated_at = now()`,
			sourceID, credibility)
		return err
	})
}

// LoadSourceCredibilities returns every persisted source credibility.
func (s *Store) LoadSourceCredibilities(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, credibility FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("load source credibilities: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var cred float64
		if err := rows.Scan(&id, &cred); err != nil {
			return nil, err
		}
		out[id] = cred
	}
	return out, rows.Err()
}

// UpsertPattern writes a learned pattern under its (type, descriptor) key.
func (s *Store) UpsertPattern(ctx context.Context, p models.LearnedPattern) error {
	return s.write(ctx, "upsert pattern", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO learned_patterns (pattern_type, descriptor, correlation, usage_count, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (pattern_type, descriptor) DO UPDATE
			SET correlation = EXCLUDED.correlation, usage_count = EXCLUDED.usage_count, updated_at = EXCLUDED.updated_at`,
			p.PatternType, p.Descriptor, p.Correlation, p.UsageCount, p.UpdatedAt)
		return err
	})
}

// LoadPatterns returns all learned patterns.
func (s *Store) LoadPatterns(ctx context.Context) ([]models.LearnedPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_type, descriptor, correlation, usage_count, updated_at
		FROM learned_patterns ORDER BY pattern_type, descriptor`)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	defer rows.Close()

	var out []models.LearnedPattern
	for rows.Next() {
		var p models.LearnedPattern
		if err := rows.Scan(&p.PatternType, &p.Descriptor, &p.Correlation, &p.UsageCount, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPerformance records observed engagement. Idempotent per
// (content_id, recorded_at): a duplicate insert reports inserted=false.
func (s *Store) InsertPerformance(ctx context.Context, rec models.PerformanceRecord) (bool, error) {
	var inserted bool
	err := s.write(ctx, "insert performance", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO performance_records (content_id, views, likes, comments, shares, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (content_id, recorded_at) DO NOTHING`,
			rec.ContentID, rec.Views, rec.Likes, rec.Comments, rec.Shares, rec.RecordedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// SaveLineage records what a delivered draft was built from.
func (s *Store) SaveLineage(ctx context.Context, l ContentLineage) error {
	return s.write(ctx, "save lineage", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO generated_content (id, platform, insight_tier, source_ids, fallback, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			l.ContentID, l.Platform, l.InsightTier, pq.Array(l.SourceIDs), l.Fallback, l.CreatedAt)
		return err
	})
}

// GetLineage loads the lineage for one content id.
func (s *Store) GetLineage(ctx context.Context, contentID string) (ContentLineage, error) {
	l := ContentLineage{ContentID: contentID}
	err := s.db.QueryRowContext(ctx, `
		SELECT platform, insight_tier, source_ids, fallback, created_at
		FROM generated_content WHERE id = $1`, contentID).
		Scan(&l.Platform, &l.InsightTier, pq.Array(&l.SourceIDs), &l.Fallback, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return ContentLineage{}, fmt.Errorf("content %s: not found", contentID)
	}
	if err != nil {
		return ContentLineage{}, fmt.Errorf("get lineage: %w", err)
	}
	return l, nil
}
