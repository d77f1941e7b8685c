package dedupe

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Submission identifies one request to process a text
type Submission struct {
	Text     string
	Job      string
	BaseSeed int64
	RunID    string
}

// Tracker counts repeated submissions of the same text so callers can see
// when a lesson is being re-animated
type Tracker struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewTracker creates a new dedupe tracker
func NewTracker(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	tracker := &Tracker{db: db, logger: logger}

	if err := tracker.ensureTable(ctx); err != nil {
		return nil, errors.Wrap(err, "ensure dedupe table")
	}

	return tracker, nil
}

// ensureTable creates the submission_dedupe table if it doesn't exist
func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS submission_dedupe (
			text_hash TEXT NOT NULL,
			job TEXT NOT NULL,
			base_seed BIGINT,
			last_run_id TEXT,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1,
			PRIMARY KEY (text_hash, job)
		)
	`

	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "create submission_dedupe table")
	}

	t.logger.Debugw("submission_dedupe table ready")
	return nil
}

// HashText returns the ledger key for a text; whitespace and case differences collapse
func HashText(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Record records a submission and returns how many times it has been seen
func (t *Tracker) Record(ctx context.Context, s Submission) (int, error) {
	query := `
		INSERT INTO submission_dedupe (text_hash, job, base_seed, last_run_id, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		ON CONFLICT (text_hash, job) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = submission_dedupe.seen_count + 1,
		    base_seed = EXCLUDED.base_seed,
		    last_run_id = EXCLUDED.last_run_id
		RETURNING seen_count
	`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, HashText(s.Text), s.Job, s.BaseSeed, s.RunID).Scan(&seenCount)
	if err != nil {
		return 0, errors.Wrap(err, "record submission")
	}

	if seenCount > 1 {
		t.logger.Infow("Duplicate submission", "job", s.Job, "run_id", s.RunID, "seen_count", seenCount)
	}
	return seenCount, nil
}

// GetSeenCount retrieves the seen count for a text and job
func (t *Tracker) GetSeenCount(ctx context.Context, text, job string) (int, error) {
	query := `SELECT seen_count FROM submission_dedupe WHERE text_hash = $1 AND job = $2`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, HashText(text), job).Scan(&seenCount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get seen count")
	}

	return seenCount, nil
}
