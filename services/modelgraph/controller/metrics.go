// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controller

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("modelgraph.controller")

var (
	operationsTotal metric.Int64Counter
	prunedRelations metric.Int64Counter
	pastedElements  metric.Int64Histogram
	verifyLatency   metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		operationsTotal, err = meter.Int64Counter(
			"modelgraph_controller_operations_total",
			metric.WithDescription("Controller mutations by operation and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		prunedRelations, err = meter.Int64Counter(
			"modelgraph_controller_pruned_relations_total",
			metric.WithDescription("Dangling relations removed by unload, load or root replacement"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pastedElements, err = meter.Int64Histogram(
			"modelgraph_controller_pasted_elements",
			metric.WithDescription("Number of root elements inserted per paste"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		verifyLatency, err = meter.Float64Histogram(
			"modelgraph_controller_verify_duration_seconds",
			metric.WithDescription("Duration of model integrity verification"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordOperation counts one public mutation.
func recordOperation(operation string, err error) {
	if initMetrics() != nil {
		return
	}
	operationsTotal.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	))
}

func recordPruned(n int) {
	if n == 0 || initMetrics() != nil {
		return
	}
	prunedRelations.Add(context.Background(), int64(n))
}

func recordPasted(n int) {
	if initMetrics() != nil {
		return
	}
	pastedElements.Record(context.Background(), int64(n))
}

func recordVerify(d time.Duration, ok bool) {
	if initMetrics() != nil {
		return
	}
	verifyLatency.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.Bool("success", ok)))
}
