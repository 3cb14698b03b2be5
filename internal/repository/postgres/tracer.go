package postgres

import (
	"context"
	"time"

	"cod-fulfillment/pkg/logger"

	"github.com/jackc/pgx/v5"
)

// queryTracer logs every statement at debug level with its duration.
type queryTracer struct{}

type traceStart struct{}

type traceData struct {
	sql   string
	start time.Time
}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceStart{}, traceData{sql: data.SQL, start: time.Now()})
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	td, ok := ctx.Value(traceStart{}).(traceData)
	if !ok {
		return
	}
	logger.DBQuery(ctx, td.sql, time.Since(td.start), data.Err)
}
