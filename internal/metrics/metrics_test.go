package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wesleywu/routesock/route"
)

func TestObserveOperation(t *testing.T) {
	m := NewMetricsWithRegistry(prometheus.NewRegistry())

	m.ObserveOperation("add", 200*time.Microsecond, nil)
	m.ObserveOperation("add", 300*time.Microsecond, nil)
	m.ObserveOperation("add", 100*time.Microsecond, &route.Error{Kind: route.KindAlreadyExists, Op: "add"})
	m.ObserveOperation("delete", time.Millisecond, errors.New("boom"))

	tests := []struct {
		action, result string
		want           float64
	}{
		{"add", "success", 2},
		{"add", "AlreadyExists", 1},
		{"delete", "UnknownError", 1},
		{"delete", "success", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.operations.WithLabelValues(tt.action, tt.result))
		if got != tt.want {
			t.Errorf("operations{%s,%s}: expected %v, got %v", tt.action, tt.result, tt.want, got)
		}
	}

	if n := testutil.CollectAndCount(m.operationDuration); n != 2 {
		t.Errorf("Expected 2 duration series, got %d", n)
	}
}

func TestObserveEvent(t *testing.T) {
	m := NewMetrics()

	m.ObserveEvent(route.RouteChange{Kind: route.ChangeAdd, Code: 24})
	m.ObserveEvent(route.RouteChange{Kind: route.ChangeAdd, Code: 24})
	m.ObserveEvent(route.Other(12))

	if got := testutil.ToFloat64(m.events.WithLabelValues("add")); got != 2 {
		t.Errorf("Expected 2 add events, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("other")); got != 1 {
		t.Errorf("Expected 1 other event, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastEvent); got == 0 {
		t.Error("Expected last event timestamp to be set")
	}
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{route.ErrNotFound, "NotFound"},
		{&route.Error{Kind: route.KindOutOfMemory, Op: "add", Code: 105}, "OutOfMemory"},
		{errors.New("plain"), "UnknownError"},
	}
	for _, tt := range tests {
		if got := Result(tt.err); got != tt.want {
			t.Errorf("Result(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

func TestHandler(t *testing.T) {
	m := NewMetrics()
	m.ObserveOperation("get", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `routesock_operations_total{action="get",result="success"} 1`) {
		t.Errorf("Expected operations counter in output, got:\n%s", body)
	}
}
