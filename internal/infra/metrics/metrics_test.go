package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobAndFanoutCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues("completed"))
	IncJob(" COMPLETED ")
	if got := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues("completed")); got != before+1 {
		t.Fatalf("completed = %v, want %v", got, before+1)
	}

	IncFanout("CLAUDE", "failed")
	if got := testutil.ToFloat64(fanoutOutcomes.WithLabelValues("claude", "failed")); got < 1 {
		t.Fatalf("labels should be normalized, got %v", got)
	}

	SetQueueDepth(1, 2, 3, 4, 5)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("delayed")); got != 5 {
		t.Fatalf("delayed gauge = %v", got)
	}
	ObservePhase("analyze", "ok", time.Second)
}

func TestObserveGeneration(t *testing.T) {
	ObserveGeneration("GPT", "gpt-4o", 10, 20, 30, 0.5, 1200, true)
	if got := testutil.ToFloat64(aiCostUSD.WithLabelValues("gpt", "gpt-4o")); got < 0.5 {
		t.Fatalf("cost = %v", got)
	}
	if got := testutil.ToFloat64(aiTokensTotal.WithLabelValues("gpt", "gpt-4o")); got < 30 {
		t.Fatalf("tokens = %v", got)
	}
}
