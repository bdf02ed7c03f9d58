package latency

import (
	"sync"
	"testing"
	"time"
)

func TestPercentileEmptyWindow(t *testing.T) {
	m := NewMonitor(100, 800*time.Millisecond)
	if got := m.Percentile(StageTotal, 95); got != 0 {
		t.Fatalf("empty window percentile = %v, want 0", got)
	}
	if m.IsDegraded() {
		t.Fatal("empty monitor should be healthy")
	}
}

func TestPercentileNearestRank(t *testing.T) {
	m := NewMonitor(100, 800*time.Millisecond)
	for i := 1; i <= 100; i++ {
		m.Record(StageTotal, time.Duration(i)*time.Millisecond)
	}

	p50 := m.Percentile(StageTotal, 50)
	if p50 < 50*time.Millisecond || p50 > 51*time.Millisecond {
		t.Fatalf("p50 = %v, want ~50ms", p50)
	}

	p95 := m.Percentile(StageTotal, 95)
	if p95 < 95*time.Millisecond || p95 > 96*time.Millisecond {
		t.Fatalf("p95 = %v, want ~95ms", p95)
	}
}

func TestIsDegradedOverBudget(t *testing.T) {
	m := NewMonitor(50, 800*time.Millisecond)

	for i := 0; i < 50; i++ {
		m.Record(StageTotal, 500*time.Millisecond)
	}
	if m.IsDegraded() {
		t.Fatal("under-budget monitor reported degraded")
	}

	for i := 0; i < 50; i++ {
		m.Record(StageTotal, 1200*time.Millisecond)
	}
	if !m.IsDegraded() {
		t.Fatal("over-budget monitor reported healthy")
	}
}

func TestRollingWindowEvictsOldSamples(t *testing.T) {
	m := NewMonitor(10, 800*time.Millisecond)

	// Fill the window with slow samples, then overwrite with fast ones.
	for i := 0; i < 10; i++ {
		m.Record(StageTotal, 2*time.Second)
	}
	for i := 0; i < 10; i++ {
		m.Record(StageTotal, 100*time.Millisecond)
	}

	if m.IsDegraded() {
		t.Fatal("old slow samples should have rolled out of the window")
	}
}

func TestStagesIndependent(t *testing.T) {
	m := NewMonitor(10, 800*time.Millisecond)
	m.Record(StageEmbedding, 2*time.Second)

	if m.IsDegraded() {
		t.Fatal("embedding samples must not affect the total-stage verdict")
	}
	if got := m.Percentile(StageEmbedding, 95); got != 2*time.Second {
		t.Fatalf("embedding p95 = %v, want 2s", got)
	}
}

func TestReport(t *testing.T) {
	m := NewMonitor(10, 800*time.Millisecond)
	m.Record(StageTotal, 100*time.Millisecond)
	m.Record(StageTotal, 200*time.Millisecond)
	m.Record(StageEmbedding, 50*time.Millisecond)

	report := m.Report()
	if !report.Healthy {
		t.Fatal("expected healthy report")
	}
	if report.BudgetMs != 800 {
		t.Fatalf("budget = %d, want 800", report.BudgetMs)
	}

	total := report.Stages[StageTotal]
	if total.Count != 2 {
		t.Fatalf("total count = %d, want 2", total.Count)
	}
	if total.AvgMs < 149 || total.AvgMs > 151 {
		t.Fatalf("total avg = %v, want ~150", total.AvgMs)
	}

	if report.Stages[StageReranking].Count != 0 {
		t.Fatal("reranking stage should be empty")
	}
}

func TestRecordConcurrent(t *testing.T) {
	m := NewMonitor(200, 800*time.Millisecond)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Record(StageTotal, time.Duration(i)*time.Millisecond)
				m.Percentile(StageTotal, 95)
			}
		}()
	}
	wg.Wait()

	report := m.Report()
	if report.Stages[StageTotal].Count != 200 {
		t.Fatalf("window count = %d, want full window of 200", report.Stages[StageTotal].Count)
	}
}

func TestUnknownStageIgnored(t *testing.T) {
	m := NewMonitor(10, 800*time.Millisecond)
	m.Record(Stage("bogus"), time.Second)
	if got := m.Percentile(Stage("bogus"), 95); got != 0 {
		t.Fatalf("unknown stage percentile = %v, want 0", got)
	}
}
