// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the client. A nil *Metrics is a valid no-op receiver,
// so instrumentation is optional.
type Metrics struct {
	encryptedValueCount  *prometheus.CounterVec
	decryptionCount      *prometheus.CounterVec
	gatewayLatencyMS     *prometheus.GaugeVec
	batchDecryptionSize  prometheus.Histogram
	initializationErrors prometheus.Counter
}

// NewMetrics creates and registers client metrics on the registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		encryptedValueCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "encrypted_value_count",
				Help: "Number of plaintext values sealed into encrypted inputs",
			},
			[]string{"fhe_type"},
		),
		decryptionCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decryption_count",
				Help: "Number of user decryption requests by outcome",
			},
			[]string{"outcome"},
		),
		gatewayLatencyMS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_latency_ms",
				Help: "Latency of the last gateway round trip in milliseconds",
			},
			[]string{"operation"},
		),
		batchDecryptionSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batch_decryption_size",
				Help:    "Number of requests per batch decryption call",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		initializationErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "initialization_error_count",
				Help: "Number of failed client initialization attempts",
			},
		),
	}

	registerer.MustRegister(m.encryptedValueCount)
	registerer.MustRegister(m.decryptionCount)
	registerer.MustRegister(m.gatewayLatencyMS)
	registerer.MustRegister(m.batchDecryptionSize)
	registerer.MustRegister(m.initializationErrors)

	return m
}

func (m *Metrics) observeEncryption(t FheType) {
	if m == nil {
		return
	}
	m.encryptedValueCount.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) observeDecryption(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decryptionCount.WithLabelValues(outcome).Inc()
	m.gatewayLatencyMS.WithLabelValues("decrypt").Set(float64(elapsed.Milliseconds()))
}

func (m *Metrics) observeBatchSize(n int) {
	if m == nil {
		return
	}
	m.batchDecryptionSize.Observe(float64(n))
}

func (m *Metrics) observeInitFailure() {
	if m == nil {
		return
	}
	m.initializationErrors.Inc()
}
