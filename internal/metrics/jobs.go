package metrics

import (
	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

var (
	JobsActive = Collector.Gauge(namespace+"_jobs_active", "Jobs currently in flight", "")

	JobDuration = Collector.Histogram(namespace+"_job_duration_seconds", "End-to-end job duration in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60, 120})
	EngineLatency = Collector.Histogram(namespace+"_engine_duration_seconds", "Engine invocation latency in seconds", "",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60})
)

// JobsTotal returns the counter for one terminal job status.
func JobsTotal(status domain.JobStatus) *Counter {
	return Collector.Counter(namespace+"_jobs_total", "Finished jobs by outcome", `outcome="`+string(status)+`"`)
}

// EventsTotal returns the counter for one router action.
func EventsTotal(action string) *Counter {
	return Collector.Counter(namespace+"_events_total", "Inbound events by router action", `action="`+action+`"`)
}

// ObserveJobs keeps the job metrics in step with pipeline lifecycle events.
func ObserveJobs(eb *bus.EventBus) {
	eb.On(bus.EventClassified, func(e bus.JobEvent) {
		EventsTotal(e.Action).Inc()
	})
	eb.On(bus.EventJobStarted, func(e bus.JobEvent) {
		JobsActive.Inc()
	})
	eb.On(bus.EventJobFinished, func(e bus.JobEvent) {
		JobsActive.Dec()
		JobsTotal(e.Job.Status).Inc()
		JobDuration.Observe(float64(e.Job.DurationMs) / 1000)
	})
}
