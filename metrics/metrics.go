//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package metrics provides Prometheus instrumentation for the
// resharing sessions and the consistency checker.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "irismpc"

	// Label names
	LabelSide    = "side"
	LabelOutcome = "outcome"
	LabelResult  = "result"

	// Session sides
	SideServer = "server"
	SideClient = "client"

	// Outcome values
	OutcomeClosed = "closed"
	OutcomeError  = "error"

	// Checker results
	ResultMatch    = "match"
	ResultMismatch = "mismatch"
	ResultError    = "error"
)

var (
	// SessionsTotal counts finished resharing sessions by side and
	// outcome.
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reshare",
			Name:      "sessions_total",
			Help:      "Total number of resharing sessions by side and outcome",
		},
		[]string{LabelSide, LabelOutcome},
	)

	// BatchesTotal counts acknowledged batches.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reshare",
			Name:      "batches_total",
			Help:      "Total number of acknowledged batches by side",
		},
		[]string{LabelSide},
	)

	// RecordsTotal counts migrated records.
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reshare",
			Name:      "records_total",
			Help:      "Total number of migrated records by side",
		},
		[]string{LabelSide},
	)

	// BatchDuration tracks the round trip time from sending a
	// batch to receiving its acknowledgment.
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "reshare",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch transfers in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelSide},
	)

	// CheckerSamplesTotal counts checked identities by result.
	CheckerSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "checker",
			Name:      "samples_total",
			Help:      "Total number of checked identities by result",
		},
		[]string{LabelResult},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordSession records a finished session.
func RecordSession(side string, err error) {
	if !enabled.Load() {
		return
	}
	outcome := OutcomeClosed
	if err != nil {
		outcome = OutcomeError
	}
	SessionsTotal.WithLabelValues(side, outcome).Inc()
}

// RecordBatch records an acknowledged batch of count records.
func RecordBatch(side string, count int, duration time.Duration) {
	if !enabled.Load() {
		return
	}
	BatchesTotal.WithLabelValues(side).Inc()
	RecordsTotal.WithLabelValues(side).Add(float64(count))
	BatchDuration.WithLabelValues(side).Observe(duration.Seconds())
}

// RecordSample records a checker sample result.
func RecordSample(result string) {
	if !enabled.Load() {
		return
	}
	CheckerSamplesTotal.WithLabelValues(result).Inc()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// Serve serves the metrics at addr under /metrics until the context
// is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
