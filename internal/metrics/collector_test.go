package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

func TestRegistry_SameSeriesReturned(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", `k="v"`)
	b := r.Counter("x_total", "help", `k="v"`)
	if a != b {
		t.Fatal("expected the same counter for identical name and labels")
	}
	if r.Counter("x_total", "help", `k="w"`) == a {
		t.Fatal("different labels must yield a different counter")
	}
}

func TestRegistry_HandlerRendersPrometheusText(t *testing.T) {
	r := NewRegistry()
	r.Counter("demo_jobs_total", "Jobs", `outcome="replied"`).Add(3)
	r.Counter("demo_jobs_total", "Jobs", `outcome="engine_failure"`).Inc()
	r.Gauge("demo_active", "Active", "").Set(2)
	h := r.Histogram("demo_seconds", "Latency", "", []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE demo_jobs_total counter",
		`demo_jobs_total{outcome="replied"} 3`,
		`demo_jobs_total{outcome="engine_failure"} 1`,
		"demo_active 2",
		`demo_seconds_bucket{le="1"} 1`,
		`demo_seconds_bucket{le="5"} 2`,
		`demo_seconds_bucket{le="+Inf"} 2`,
		"demo_seconds_count 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
	if strings.Count(body, "# HELP demo_jobs_total") != 1 {
		t.Errorf("HELP line should be written once per metric name\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestObserveJobs(t *testing.T) {
	eb := bus.NewEventBus(nil)
	ObserveJobs(eb)

	before := JobsTotal(domain.JobEngineFailure).Value()
	helpBefore := EventsTotal("help").Value()

	eb.Emit(bus.JobEvent{Type: bus.EventClassified, Action: "help"})
	eb.Emit(bus.JobEvent{Type: bus.EventJobStarted})
	if JobsActive.Value() < 1 {
		t.Fatal("expected an active job")
	}
	eb.Emit(bus.JobEvent{Type: bus.EventJobFinished, Job: domain.JobRecord{Status: domain.JobEngineFailure, DurationMs: 1500}})

	if got := JobsTotal(domain.JobEngineFailure).Value(); got != before+1 {
		t.Fatalf("expected %d engine failures, got %d", before+1, got)
	}
	if got := EventsTotal("help").Value(); got != helpBefore+1 {
		t.Fatalf("expected %d help events, got %d", helpBefore+1, got)
	}
}
