package rag

import (
	"context"
	"time"

	"gwi.com/legal-rag/internal/metrics"
	"gwi.com/legal-rag/internal/model"
)

// Poll bounds how long a caller waits for a corpus to become ready.
type Poll struct {
	Attempts int
	Interval time.Duration
}

// WaitReady checks the import status up to p.Attempts times, sleeping p.Interval
// between checks. It returns the last status seen; pending means the bound ran out.
func WaitReady(ctx context.Context, c Corpus, h Handle, p Poll) (model.IngestionStatus, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	m := metrics.Get()

	for i := 0; ; i++ {
		status, err := c.Status(ctx, h)
		if err != nil {
			m.ReadinessPolls.WithLabelValues("error").Inc()
			return model.IngestionPending, err
		}
		m.ReadinessPolls.WithLabelValues(string(status)).Inc()
		if status != model.IngestionPending || i == attempts-1 {
			return status, nil
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.IngestionPending, ctx.Err()
		case <-timer.C:
		}
	}
}
