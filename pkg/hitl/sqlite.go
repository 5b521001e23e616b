package hitl

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const reviewSchema = `
CREATE TABLE IF NOT EXISTS reviews (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	trace_id TEXT,
	checkpoint TEXT NOT NULL,
	reason TEXT NOT NULL,
	context_data TEXT,
	prompt TEXT NOT NULL,
	response TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	priority INTEGER NOT NULL DEFAULT 0,
	assigned_to TEXT,
	assigned_at INTEGER,
	locked_until INTEGER,
	reviewed_by TEXT,
	review_notes TEXT,
	decision_timestamp INTEGER,
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_reviews_dequeue ON reviews(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_reviews_request_id ON reviews(request_id);
CREATE INDEX IF NOT EXISTS idx_reviews_trace_id ON reviews(trace_id);
CREATE INDEX IF NOT EXISTS idx_reviews_locked_until ON reviews(locked_until);
`

const reviewColumns = `id, request_id, trace_id, checkpoint, reason, context_data, prompt, response,
	status, priority, assigned_to, assigned_at, locked_until,
	reviewed_by, review_notes, decision_timestamp, created_at, expires_at, metadata`

// SQLiteRepositoryConfig configures the review store.
type SQLiteRepositoryConfig struct {
	// Path is the SQLite database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// SQLiteRepository implements Repository on SQLite.
//
// SQLite serializes writers, so running the claim SELECT and the
// assigning UPDATE inside one transaction gives the same disjointness
// guarantee as a skip-locked dequeue: two concurrent callers can
// never claim the same row.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the review store.
func NewSQLiteRepository(config SQLiteRepositoryConfig) (*SQLiteRepository, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("review store path cannot be empty")
	}
	busyTimeout := config.BusyTimeout
	if busyTimeout == 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		config.Path, int(busyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open review store: %w", err)
	}

	// Single writer keeps claim transactions strictly serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(reviewSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize review schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Enqueue implements Repository.
func (r *SQLiteRepository) Enqueue(ctx context.Context, create *ReviewCreate) (*Review, error) {
	var metadata any
	if len(create.Metadata) > 0 {
		raw, err := json.Marshal(create.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal review metadata: %w", err)
		}
		metadata = string(raw)
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (request_id, trace_id, checkpoint, reason, context_data, prompt, response,
			status, priority, created_at, expires_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		create.RequestID, nullStr(create.TraceID), create.Checkpoint, create.Reason,
		nullStr(create.ContextData), create.Prompt, nullStr(create.Response),
		string(StatusPending), create.Priority, now.UnixMilli(), nullTime(create.ExpiresAt), metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue review: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read review id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Dequeue implements Repository.
func (r *SQLiteRepository) Dequeue(ctx context.Context, assignedTo string, lockDuration time.Duration, limit int) ([]*Review, error) {
	if limit <= 0 {
		limit = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM reviews
		WHERE status = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`,
		string(StatusPending), now.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending reviews: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan review id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending reviews: %w", err)
	}

	if len(ids) == 0 {
		return []*Review{}, nil
	}

	lockedUntil := now.Add(lockDuration)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+4)
	args = append(args, string(StatusAssigned), assignedTo, now.UnixMilli(), lockedUntil.UnixMilli())
	for _, id := range ids {
		args = append(args, id)
	}

	// The status predicate repeats so a row decided between the
	// select and the update inside another transaction is skipped.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE reviews
		SET status = ?, assigned_to = ?, assigned_at = ?, locked_until = ?
		WHERE id IN (%s) AND status = 'pending'`, placeholders),
		args...,
	); err != nil {
		return nil, fmt.Errorf("failed to assign reviews: %w", err)
	}

	claimed, err := r.selectReviews(ctx, tx, fmt.Sprintf(
		`SELECT %s FROM reviews WHERE id IN (%s) AND assigned_to = ? AND status = ?
		 ORDER BY priority DESC, created_at ASC`, reviewColumns, placeholders),
		append(idArgs(ids), assignedTo, string(StatusAssigned))...,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}
	return claimed, nil
}

// GetByID implements Repository.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Review, error) {
	reviews, err := r.selectReviews(ctx, r.db, fmt.Sprintf(
		"SELECT %s FROM reviews WHERE id = ?", reviewColumns), id)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, &NotFoundError{ID: id}
	}
	return reviews[0], nil
}

// Update implements Repository.
func (r *SQLiteRepository) Update(ctx context.Context, id int64, patch *ReviewUpdate) (*Review, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.getInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any

	if patch.Status != nil {
		status := *patch.Status
		if (status == StatusApproved || status == StatusRejected) &&
			patch.DecisionTimestamp == nil && current.DecisionTimestamp == nil {
			return nil, &InvariantViolationError{
				ID:      id,
				Message: fmt.Sprintf("status %s requires a decision timestamp", status),
			}
		}
		sets = append(sets, "status = ?")
		args = append(args, string(status))
	}
	if patch.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, nullStr(*patch.AssignedTo))
	}
	if patch.LockedUntil != nil {
		sets = append(sets, "locked_until = ?")
		args = append(args, patch.LockedUntil.UnixMilli())
	}
	if patch.ReviewedBy != nil {
		sets = append(sets, "reviewed_by = ?")
		args = append(args, nullStr(*patch.ReviewedBy))
	}
	if patch.ReviewNotes != nil {
		sets = append(sets, "review_notes = ?")
		args = append(args, nullStr(*patch.ReviewNotes))
	}
	if patch.DecisionTimestamp != nil {
		sets = append(sets, "decision_timestamp = ?")
		args = append(args, patch.DecisionTimestamp.UnixMilli())
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *patch.Priority)
	}

	if len(sets) > 0 {
		args = append(args, id)
		query := fmt.Sprintf("UPDATE reviews SET %s WHERE id = ?", strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to update review %d: %w", id, err)
		}
	}

	updated, err := r.getInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return updated, nil
}

// Decide implements Repository.
func (r *SQLiteRepository) Decide(ctx context.Context, id int64, decision ReviewStatus, reviewedBy, notes string) (*Review, error) {
	if decision != StatusApproved && decision != StatusRejected {
		return nil, &InvalidDecisionError{Decision: string(decision)}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin decide transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := r.getInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.decidable() {
		return nil, &IllegalTransitionError{ID: id, From: current.Status, To: decision}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE reviews
		SET status = ?, reviewed_by = ?, review_notes = ?, decision_timestamp = ?
		WHERE id = ?`,
		string(decision), reviewedBy, nullStr(notes), now.UnixMilli(), id,
	); err != nil {
		return nil, fmt.Errorf("failed to decide review %d: %w", id, err)
	}

	decided, err := r.getInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit decision: %w", err)
	}
	return decided, nil
}

// QueryByRequestID implements Repository.
func (r *SQLiteRepository) QueryByRequestID(ctx context.Context, requestID string) ([]*Review, error) {
	return r.selectReviews(ctx, r.db, fmt.Sprintf(
		"SELECT %s FROM reviews WHERE request_id = ? ORDER BY created_at ASC, id ASC", reviewColumns),
		requestID)
}

// QueryByTraceID implements Repository.
func (r *SQLiteRepository) QueryByTraceID(ctx context.Context, traceID string) ([]*Review, error) {
	return r.selectReviews(ctx, r.db, fmt.Sprintf(
		"SELECT %s FROM reviews WHERE trace_id = ? ORDER BY created_at ASC, id ASC", reviewColumns),
		traceID)
}

// Query implements Repository.
func (r *SQLiteRepository) Query(ctx context.Context, query *ReviewQuery) ([]*Review, error) {
	var conditions []string
	var args []any

	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(query.Status))
	}
	if query.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, query.RequestID)
	}
	if query.TraceID != "" {
		conditions = append(conditions, "trace_id = ?")
		args = append(args, query.TraceID)
	}
	if query.Checkpoint != "" {
		conditions = append(conditions, "checkpoint = ?")
		args = append(args, query.Checkpoint)
	}
	if query.AssignedTo != "" {
		conditions = append(conditions, "assigned_to = ?")
		args = append(args, query.AssignedTo)
	}
	if query.Prompt != "" {
		conditions = append(conditions, "prompt = ?")
		args = append(args, query.Prompt)
	}

	stmt := fmt.Sprintf("SELECT %s FROM reviews", reviewColumns)
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}
	stmt += " ORDER BY created_at DESC, id DESC"

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	stmt += " LIMIT ?"
	args = append(args, limit)
	if query.Offset > 0 {
		stmt += " OFFSET ?"
		args = append(args, query.Offset)
	}

	return r.selectReviews(ctx, r.db, stmt, args...)
}

// ReclaimExpiredLocks implements Repository.
func (r *SQLiteRepository) ReclaimExpiredLocks(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET status = ?, assigned_to = NULL, assigned_at = NULL, locked_until = NULL
		WHERE status = ? AND locked_until IS NOT NULL AND locked_until < ?`,
		string(StatusPending), string(StatusAssigned), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired locks: %w", err)
	}
	return result.RowsAffected()
}

// ExpireStale implements Repository.
func (r *SQLiteRepository) ExpireStale(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE reviews
		SET status = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		string(StatusExpired), string(StatusPending), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale reviews: %w", err)
	}
	return result.RowsAffected()
}

// Close implements Repository.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// querier abstracts *sql.DB and *sql.Tx for the shared scan path.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) getInTx(ctx context.Context, tx *sql.Tx, id int64) (*Review, error) {
	reviews, err := r.selectReviews(ctx, tx, fmt.Sprintf(
		"SELECT %s FROM reviews WHERE id = ?", reviewColumns), id)
	if err != nil {
		return nil, err
	}
	if len(reviews) == 0 {
		return nil, &NotFoundError{ID: id}
	}
	return reviews[0], nil
}

func (r *SQLiteRepository) selectReviews(ctx context.Context, q querier, query string, args ...any) ([]*Review, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []*Review{}
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return reviews, nil
}

func scanReview(rows *sql.Rows) (*Review, error) {
	var (
		review      Review
		traceID     sql.NullString
		contextData sql.NullString
		response    sql.NullString
		status      string
		assignedTo  sql.NullString
		assignedAt  sql.NullInt64
		lockedUntil sql.NullInt64
		reviewedBy  sql.NullString
		reviewNotes sql.NullString
		decisionTS  sql.NullInt64
		createdAt   int64
		expiresAt   sql.NullInt64
		metadata    sql.NullString
	)

	if err := rows.Scan(
		&review.ID, &review.RequestID, &traceID, &review.Checkpoint, &review.Reason,
		&contextData, &review.Prompt, &response,
		&status, &review.Priority, &assignedTo, &assignedAt, &lockedUntil,
		&reviewedBy, &reviewNotes, &decisionTS, &createdAt, &expiresAt, &metadata,
	); err != nil {
		return nil, fmt.Errorf("failed to scan review: %w", err)
	}

	review.TraceID = traceID.String
	review.ContextData = contextData.String
	review.Response = response.String
	review.Status = ReviewStatus(status)
	review.AssignedTo = assignedTo.String
	review.ReviewedBy = reviewedBy.String
	review.ReviewNotes = reviewNotes.String
	review.CreatedAt = time.UnixMilli(createdAt).UTC()
	review.AssignedAt = optTime(assignedAt)
	review.LockedUntil = optTime(lockedUntil)
	review.DecisionTimestamp = optTime(decisionTS)
	review.ExpiresAt = optTime(expiresAt)

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &review.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review %d metadata: %w", review.ID, err)
		}
	}
	return &review, nil
}

func optTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
