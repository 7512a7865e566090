package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/serialbridge/internal/metrics"
)

// metricsInterval is how often totals are pushed to metrics subscribers.
const metricsInterval = 2 * time.Second

// registerMetricsRoutes registers the metrics SSE endpoint
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Metrics Server-Sent Events Stream",
		Description: "Serial counters pushed periodically, for dashboards without a Prometheus scraper",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"totals": metrics.Totals{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ticker := time.NewTicker(metricsInterval)
		defer ticker.Stop()

		last := metrics.GetTotals()
		if err := send.Data(last); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := metrics.GetTotals()
				if cur == last {
					continue
				}
				last = cur
				if err := send.Data(cur); err != nil {
					return
				}
			}
		}
	})
}
