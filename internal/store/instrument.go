package store

import (
	"context"
	"errors"
	"time"

	"datosgw/internal/metrics"
	"datosgw/internal/model"
)

type instrumented struct {
	next    Store
	metrics *metrics.Metrics
}

// Instrument wraps s so every call records its latency and outcome.
func Instrument(s Store, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{next: s, metrics: m}
}

func (i *instrumented) List(ctx context.Context) ([]model.Record, error) {
	start := time.Now()
	recs, err := i.next.List(ctx)
	i.metrics.ObserveStoreCall("list", outcome(err), time.Since(start))
	return recs, err
}

func (i *instrumented) Insert(ctx context.Context, rec model.NewRecord) (model.Record, error) {
	start := time.Now()
	out, err := i.next.Insert(ctx, rec)
	i.metrics.ObserveStoreCall("insert", outcome(err), time.Since(start))
	return out, err
}

func (i *instrumented) Update(ctx context.Context, id string, patch model.RecordPatch) (model.Record, error) {
	start := time.Now()
	out, err := i.next.Update(ctx, id, patch)
	i.metrics.ObserveStoreCall("update", outcome(err), time.Since(start))
	return out, err
}

func (i *instrumented) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := i.next.Delete(ctx, id)
	i.metrics.ObserveStoreCall("delete", outcome(err), time.Since(start))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
