// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricOpts contains naming pieces of the exposed metric
type MetricOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
}

// StartMetrics adds the metrics handler for g to a http.ServeMux
func StartMetrics(mux *http.ServeMux, g prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// CounterVec creates a prometheus.CounterVec and registers it with r. If an
// identical collector is already registered that one is returned instead.
func CounterVec(r prometheus.Registerer, opts MetricOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, labels)
	return register(r, c).(*prometheus.CounterVec)
}

// GaugeFunc creates a gauge sampling f on every scrape and registers it with r.
func GaugeFunc(r prometheus.Registerer, opts MetricOpts, f func() float64) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: opts.Namespace,
		Subsystem: opts.Subsystem,
		Name:      opts.Name,
		Help:      opts.Help,
	}, f)
	return register(r, g).(prometheus.GaugeFunc)
}

func register(r prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if r == nil {
		return c
	}
	err := r.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	// Only reachable with inconsistent label sets, which is a programming error.
	panic(err)
}
