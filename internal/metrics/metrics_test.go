package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CycleDone(1)
	m.FetchError("timeout")
	m.Announced("checkin")
	m.NotifyFailed()
	m.CursorSet("alice", 1)
	m.CursorReset("alice")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FetchError("rate_limited")
	m.FetchError("rate_limited")
	m.Announced("checkin")
	m.Announced("badge")
	m.Announced("badge")
	m.CursorSet("alice", 105)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"rate limited errors", testutil.ToFloat64(m.fetchErrors.WithLabelValues("rate_limited")), 2},
		{"checkins announced", testutil.ToFloat64(m.announced.WithLabelValues("checkin")), 1},
		{"badges announced", testutil.ToFloat64(m.announced.WithLabelValues("badge")), 2},
		{"cursor gauge", testutil.ToFloat64(m.cursor.WithLabelValues("alice")), 105},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CycleDone(0.2)

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "slappd_cycles_total 1") {
		t.Errorf("metrics output missing cycle counter:\n%s", body)
	}

	hresp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	_ = hresp.Body.Close()
	if diff := cmp.Diff(http.StatusOK, hresp.StatusCode); diff != "" {
		t.Errorf("healthz status mismatch (-want +got):\n%s", diff)
	}
}
