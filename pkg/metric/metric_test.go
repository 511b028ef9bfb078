// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	pt "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterVecGetOrCreate(t *testing.T) {
	r := prometheus.NewRegistry()
	opts := MetricOpts{Namespace: "osal", Subsystem: "mutex", Name: "take_total", Help: "takes"}
	a := CounterVec(r, opts, []string{"name"})
	b := CounterVec(r, opts, []string{"name"})
	a.WithLabelValues("log").Inc()
	b.WithLabelValues("log").Inc()
	if v := pt.ToFloat64(a.WithLabelValues("log")); v != 2 {
		t.Errorf("Expected both vecs to share one counter at 2, got %v", v)
	}
}

func TestStartMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	GaugeFunc(r, MetricOpts{Namespace: "osal", Name: "heap_free_bytes", Help: "free"}, func() float64 { return 42 })
	mux := http.NewServeMux()
	StartMetrics(mux, r)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "osal_heap_free_bytes 42") {
		t.Errorf("Expected gauge in exposition, got:\n%s", b)
	}
}
