// Copyright 2023 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-osal/pkg/metric"
)

// metrics mirrors the registry counters. Like the registry it is zeroed by
// ClearAll.
type metrics struct {
	created *prometheus.CounterVec
	ops     *prometheus.CounterVec
	memory  *prometheus.CounterVec
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		created: metric.CounterVec(r, metric.MetricOpts{
			Namespace: "osal",
			Name:      "objects_created_total",
			Help:      "Resources created per kind since the last stats clear",
		}, []string{"kind"}),
		ops: metric.CounterVec(r, metric.MetricOpts{
			Namespace: "osal",
			Name:      "operations_total",
			Help:      "Successful operations per resource since the last stats clear",
		}, []string{"kind", "name", "op"}),
		memory: metric.CounterVec(r, metric.MetricOpts{
			Namespace: "osal",
			Subsystem: "memory",
			Name:      "calls_total",
			Help:      "Alloc and Free calls since the last stats clear",
		}, []string{"op"}),
	}
}

func (m *metrics) reset() {
	m.created.Reset()
	m.ops.Reset()
	m.memory.Reset()
}

func registerHeapGauges(r prometheus.Registerer, b Backend) {
	if r == nil {
		return
	}
	metric.GaugeFunc(r, metric.MetricOpts{
		Namespace: "osal",
		Subsystem: "heap",
		Name:      "total_bytes",
		Help:      "Size of the backend heap",
	}, func() float64 { return float64(b.HeapStats().Total) })
	metric.GaugeFunc(r, metric.MetricOpts{
		Namespace: "osal",
		Subsystem: "heap",
		Name:      "free_bytes",
		Help:      "Free bytes left on the backend heap",
	}, func() float64 { return float64(b.HeapStats().Free) })
	metric.GaugeFunc(r, metric.MetricOpts{
		Namespace: "osal",
		Subsystem: "heap",
		Name:      "min_ever_free_bytes",
		Help:      "Lowest free heap seen since start",
	}, func() float64 { return float64(b.HeapStats().MinEverFree) })
}
