package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments mirrors the mutation and backfill counters onto the OTel meter
// so collectors that do not scrape Prometheus still see them.
type Instruments struct {
	mutations         metric.Int64Counter
	auditGaps         metric.Int64Counter
	backfillProcessed metric.Int64Counter
}

// NewInstruments creates the instruments on the global meter provider
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(InstrumentationName)

	i := &Instruments{}
	var err error

	i.mutations, err = meter.Int64Counter(
		"grant.permission.mutations",
		metric.WithDescription("Override updates and resets"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mutations counter: %w", err)
	}

	i.auditGaps, err = meter.Int64Counter(
		"grant.audit.write_failures",
		metric.WithDescription("Mutations without an audit entry"),
		metric.WithUnit("{mutation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit gap counter: %w", err)
	}

	i.backfillProcessed, err = meter.Int64Counter(
		"grant.backfill.principals",
		metric.WithDescription("Principals processed by the backfill"),
		metric.WithUnit("{principal}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create backfill counter: %w", err)
	}

	return i, nil
}

// RecordMutation counts an update or reset
func (i *Instruments) RecordMutation(ctx context.Context, operation, outcome string) {
	if i == nil {
		return
	}
	i.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RecordAuditGap counts a mutation whose audit write failed
func (i *Instruments) RecordAuditGap(ctx context.Context, operation string) {
	if i == nil {
		return
	}
	i.auditGaps.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordBackfillItem counts a processed principal
func (i *Instruments) RecordBackfillItem(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.backfillProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
