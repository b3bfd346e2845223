package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultSlowQueryThreshold is the duration above which a query is logged.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// SlowQueryTracer implements pgx.QueryTracer, logging failed and slow queries.
type SlowQueryTracer struct {
	threshold time.Duration
	logger    *zap.Logger
	now       func() time.Time

	total  atomic.Int64
	slow   atomic.Int64
	failed atomic.Int64
}

// NewSlowQueryTracer creates a tracer.
func NewSlowQueryTracer(threshold time.Duration, logger *zap.Logger) *SlowQueryTracer {
	return &SlowQueryTracer{
		threshold: threshold,
		logger:    logger.Named("query"),
		now:       time.Now,
	}
}

type traceKey struct{}

type traceStart struct {
	at  time.Time
	sql string
}

// TraceQueryStart records the start of a query.
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{at: t.now(), sql: data.SQL})
}

// TraceQueryEnd logs the query if it failed or ran past the threshold.
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	t.total.Add(1)
	elapsed := t.now().Sub(start.at)

	if data.Err != nil {
		t.failed.Add(1)
		t.logger.Warn("query failed",
			zap.String("sql", truncateSQL(start.sql, 300)),
			zap.Duration("duration", elapsed),
			zap.Error(data.Err),
		)
		return
	}
	if elapsed >= t.threshold {
		t.slow.Add(1)
		t.logger.Warn("slow query",
			zap.String("sql", truncateSQL(start.sql, 300)),
			zap.Duration("duration", elapsed),
			zap.String("command_tag", data.CommandTag.String()),
		)
	}
}

// Counts returns total, slow and failed query counts.
func (t *SlowQueryTracer) Counts() (total, slow, failed int64) {
	return t.total.Load(), t.slow.Load(), t.failed.Load()
}

func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen-3] + "..."
}
