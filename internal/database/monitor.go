package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultConnectTimeout = 5 * time.Second

var (
	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Subsystem: "database_pool",
		Name:      "connections",
		Help:      "Connections in the pool by state",
	}, []string{"state"}) // total, idle, in_use, max

	// pgxpool reports cumulative values; they are mirrored as gauges.
	poolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Subsystem: "database_pool",
		Name:      "acquire_count_total",
		Help:      "Cumulative successful acquires",
	})

	poolAcquireDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Subsystem: "database_pool",
		Name:      "acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	poolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbiter",
		Subsystem: "database_pool",
		Name:      "wait_count_total",
		Help:      "Cumulative acquires that waited for a connection",
	})
)

// RunPoolMonitor samples pool statistics every interval until ctx is done.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordPoolStats(pool.Stat())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordPoolStats(s *pgxpool.Stat) {
	poolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	poolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	poolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	poolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))
	poolAcquireCount.Set(float64(s.AcquireCount()))
	poolAcquireDuration.Set(s.AcquireDuration().Seconds())
	poolWaitCount.Set(float64(s.EmptyAcquireCount()))
}
