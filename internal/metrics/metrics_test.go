package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

func TestObserver(t *testing.T) {
	var o Observer
	o.QueueLength(7)
	o.BusySlots(3)

	if got := testutil.ToFloat64(QueueLength); got != 7 {
		t.Errorf("queue length = %v, want 7", got)
	}
	if got := testutil.ToFloat64(WorkersBusy); got != 3 {
		t.Errorf("workers busy = %v, want 3", got)
	}

	before := testutil.ToFloat64(JobsTotal.WithLabelValues(simulation.OutcomeError))
	o.JobFinished(simulation.OutcomeError, 50*time.Millisecond)
	if got := testutil.ToFloat64(JobsTotal.WithLabelValues(simulation.OutcomeError)); got != before+1 {
		t.Errorf("error jobs = %v, want %v", got, before+1)
	}
}

func TestListenerCountsRunStatus(t *testing.T) {
	var l Listener
	start := time.Now()

	completed := testutil.ToFloat64(RunsTotal.WithLabelValues(StatusCompleted))
	cancelled := testutil.ToFloat64(RunsTotal.WithLabelValues(StatusCancelled))

	l.Complete(simulation.Summary{StartedAt: start, FinishedAt: start.Add(time.Second)})
	l.Complete(simulation.Summary{Cancelled: true, StartedAt: start, FinishedAt: start})

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(StatusCompleted)); got != completed+1 {
		t.Errorf("completed runs = %v, want %v", got, completed+1)
	}
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(StatusCancelled)); got != cancelled+1 {
		t.Errorf("cancelled runs = %v, want %v", got, cancelled+1)
	}
}

func TestCollectorsRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"combatsim_queue_length", "combatsim_workers_busy", "combatsim_job_duration_seconds"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
