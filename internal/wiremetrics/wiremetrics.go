// Copyright 2026 The fcgiwire Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wiremetrics registers the Prometheus instrumentation for the
// codec's CLI harness: records parsed, bytes framed, parse errors, and
// responder connections in flight, in the same promauto-registered-at-init shape
// the teacher uses for its own admin API metrics.
package wiremetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fcgiwire"

var metrics = struct {
	recordsParsed    *prometheus.CounterVec
	bytesFramed      *prometheus.CounterVec
	requestsInFlight prometheus.Gauge
	parseErrors      *prometheus.CounterVec
}{}

func init() {
	const subsystem = "codec"

	metrics.recordsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "records_parsed_total",
		Help:      "Count of FastCGI records recognized by the inbound parser, by record type.",
	}, []string{"type"})

	metrics.bytesFramed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_framed_total",
		Help:      "Count of record bytes (headers and payload) sent by a session, by session side.",
	}, []string{"type"})

	metrics.requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_in_flight",
		Help:      "Number of accepted responder connections currently being served.",
	})

	metrics.parseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "parse_errors_total",
		Help:      "Count of inbound parser failures, by error kind.",
	}, []string{"kind"})
}

// RecordParsed increments the records-parsed counter for typeName.
func RecordParsed(typeName string) {
	metrics.recordsParsed.WithLabelValues(typeName).Inc()
}

// BytesFramed adds n to the bytes-framed counter for typeName, the
// sending side ("responder" or "gateway").
func BytesFramed(typeName string, n int) {
	metrics.bytesFramed.WithLabelValues(typeName).Add(float64(n))
}

// RequestOpened/RequestClosed track the in-flight gauge; cmd/fcgiwire
// calls them once per accepted responder connection.
func RequestOpened() { metrics.requestsInFlight.Inc() }
func RequestClosed() { metrics.requestsInFlight.Dec() }

// ParseError increments the parse-errors counter for kind.
func ParseError(kind string) {
	metrics.parseErrors.WithLabelValues(kind).Inc()
}
