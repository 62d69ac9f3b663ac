package eventbus

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowcore/chatflow/internal/domain"
)

// executionRow is the bun model DatabaseSubscriber writes to, grounded on
// internal/infrastructure/storage/bun_store.go's ExecutionModel — narrowed
// to the columns the event lifecycle actually updates (status, timestamps,
// usage, cost, error) rather than the teacher's full workflow graph model.
type executionRow struct {
	bun.BaseModel `bun:"table:executions,alias:e"`

	ID              string     `bun:"id,pk"`
	Status          string     `bun:"status"`
	StartedAt       *time.Time `bun:"started_at"`
	CompletedAt     *time.Time `bun:"completed_at"`
	TokensUsed      int        `bun:"tokens_used"`
	Cost            float64    `bun:"cost"`
	ExecutionTimeMs int64      `bun:"execution_time_ms"`
	ErrorMessage    string     `bun:"error_message"`
	// Metadata is event.Data, msgpack-encoded: an audit trail of the raw
	// event payload alongside the columns derived from it, without the
	// write-amplification or schema churn of one column per event field.
	Metadata []byte `bun:"metadata"`
}

// encodeMetadata msgpack-encodes an event's data map, logging (not
// failing) on error — a malformed payload must never block the status
// columns it accompanies from being written.
func encodeMetadata(logger zerolog.Logger, data map[string]any) []byte {
	if len(data) == 0 {
		return nil
	}
	buf, err := msgpack.Marshal(data)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode event metadata")
		return nil
	}
	return buf
}

// DatabaseSubscriber persists execution lifecycle transitions to Postgres
// via bun, grounded on BunStore.SaveExecution/SaveExecutionState's
// insert-or-update pattern. Every write runs in its own short transaction;
// a write failure is logged and swallowed rather than propagated, since
// a storage hiccup must never block event delivery to the other
// subscribers (spec.md §4.8).
type DatabaseSubscriber struct {
	db     *bun.DB
	logger zerolog.Logger
}

// EnsureExecutionsTable creates the executions table DatabaseSubscriber
// writes to if it does not already exist, mirroring storage.Store's own
// InitSchema for the template/definition tables.
func EnsureExecutionsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*executionRow)(nil)).IfNotExists().Exec(ctx)
	return err
}

// NewDatabaseSubscriber wraps an already-connected bun.DB.
func NewDatabaseSubscriber(db *bun.DB, logger zerolog.Logger) *DatabaseSubscriber {
	return &DatabaseSubscriber{db: db, logger: logger.With().Str("subscriber", "database").Logger()}
}

func (s *DatabaseSubscriber) Handle(ctx context.Context, event domain.WorkflowEvent) {
	var err error
	switch event.Type {
	case domain.EventStarted, domain.EventExecutionStarted:
		err = s.onStarted(ctx, event)
	case domain.EventExecutionCompleted:
		err = s.onCompleted(ctx, event)
	case domain.EventExecutionFailed:
		err = s.onFailed(ctx, event)
	case domain.EventTokenUsage:
		err = s.onTokenUsage(ctx, event)
	default:
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("execution_id", event.ExecutionID).
			Str("event_type", event.Type.String()).Msg("database subscriber write failed")
	}
}

func (s *DatabaseSubscriber) onStarted(ctx context.Context, event domain.WorkflowEvent) error {
	return s.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		row := &executionRow{ID: event.ExecutionID, Status: "running", StartedAt: &event.Timestamp}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("started_at = EXCLUDED.started_at").
			Exec(ctx)
		return err
	})
}

func (s *DatabaseSubscriber) onCompleted(ctx context.Context, event domain.WorkflowEvent) error {
	return s.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		row := &executionRow{
			ID:              event.ExecutionID,
			Status:          "completed",
			CompletedAt:     &event.Timestamp,
			TokensUsed:      intField(event.Data, "tokens_used"),
			Cost:            floatField(event.Data, "cost"),
			ExecutionTimeMs: int64(intField(event.Data, "execution_time_ms")),
			Metadata:        encodeMetadata(s.logger, event.Data),
		}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("completed_at = EXCLUDED.completed_at").
			Set("tokens_used = EXCLUDED.tokens_used").
			Set("cost = EXCLUDED.cost").
			Set("execution_time_ms = EXCLUDED.execution_time_ms").
			Set("metadata = EXCLUDED.metadata").
			Exec(ctx)
		return err
	})
}

func (s *DatabaseSubscriber) onFailed(ctx context.Context, event domain.WorkflowEvent) error {
	return s.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		row := &executionRow{
			ID:           event.ExecutionID,
			Status:       "failed",
			CompletedAt:  &event.Timestamp,
			ErrorMessage: stringField(event.Data, "error"),
			Metadata:     encodeMetadata(s.logger, event.Data),
		}
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("completed_at = EXCLUDED.completed_at").
			Set("error_message = EXCLUDED.error_message").
			Set("metadata = EXCLUDED.metadata").
			Exec(ctx)
		return err
	})
}

func (s *DatabaseSubscriber) onTokenUsage(ctx context.Context, event domain.WorkflowEvent) error {
	return s.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().Model((*executionRow)(nil)).
			Set("tokens_used = tokens_used + ?", intField(event.Data, "total_tokens")).
			Where("id = ?", event.ExecutionID).
			Exec(ctx)
		return err
	})
}

func (s *DatabaseSubscriber) withTx(ctx context.Context, fn func(context.Context, bun.Tx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, fn)
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func floatField(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
