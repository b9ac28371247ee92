package health

import (
	"errors"
	"sync"
	"testing"
)

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor()

	if monitor == nil {
		t.Fatal("NewMonitor() returned nil")
	}

	if monitor.Count() != 0 {
		t.Errorf("New monitor should have 0 components, got %d", monitor.Count())
	}
}

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor()

	monitor.Update("sink-a", Status{Status: StateHealthy, Message: "ok"})

	retrieved, exists := monitor.Get("sink-a")
	if !exists {
		t.Fatal("component should exist after update")
	}
	if retrieved.Component != "sink-a" {
		t.Errorf("expected component name 'sink-a', got %s", retrieved.Component)
	}
	if retrieved.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}
}

func TestMonitor_RecordFailureThenSuccess(t *testing.T) {
	monitor := NewMonitor()

	monitor.RecordFailure("test.Sink", errors.New("open /tmp/x: disk full"))
	st, _ := monitor.Get("test.Sink")
	if !st.IsDegraded() {
		t.Fatalf("expected degraded, got %s", st.Status)
	}
	if st.Message != "open [PATH]: disk full" {
		t.Errorf("message not sanitized: %q", st.Message)
	}
	if st.Metrics == nil || st.Metrics.ErrorCount != 1 {
		t.Fatalf("expected error count 1, got %+v", st.Metrics)
	}

	monitor.RecordFailure("test.Sink", nil)
	st, _ = monitor.Get("test.Sink")
	if st.Metrics.ErrorCount != 2 {
		t.Errorf("expected error count 2, got %d", st.Metrics.ErrorCount)
	}
	if st.Message != "Delivery failed" {
		t.Errorf("unexpected message %q", st.Message)
	}

	monitor.RecordSuccess("test.Sink")
	st, _ = monitor.Get("test.Sink")
	if !st.IsHealthy() || !st.Healthy {
		t.Fatalf("expected healthy after success, got %s", st.Status)
	}
	if st.Metrics.ErrorCount != 2 {
		t.Errorf("error count should be kept, got %d", st.Metrics.ErrorCount)
	}
	if st.Metrics.LastActivity.Before(st.Metrics.LastError) {
		t.Error("last activity should be refreshed by success")
	}
}

func TestMonitor_RecordSuccessNew(t *testing.T) {
	monitor := NewMonitor()
	monitor.RecordSuccess("fresh")
	monitor.RecordSuccess("fresh")

	st, ok := monitor.Get("fresh")
	if !ok || !st.IsHealthy() {
		t.Fatalf("expected healthy status, got %+v", st)
	}
	if st.Metrics.ErrorCount != 0 {
		t.Errorf("expected no errors, got %d", st.Metrics.ErrorCount)
	}
}

func TestMonitor_RemoveAndList(t *testing.T) {
	monitor := NewMonitor()
	monitor.UpdateHealthy("b", "ok")
	monitor.UpdateDegraded("a", "slow")
	monitor.UpdateUnhealthy("c", "down")

	names := monitor.ListComponents()
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Errorf("unexpected component list %v", names)
	}

	monitor.Remove("c")
	if _, ok := monitor.Get("c"); ok {
		t.Error("removed component should not exist")
	}
	if len(monitor.GetAll()) != 2 {
		t.Errorf("expected 2 statuses, got %d", len(monitor.GetAll()))
	}

	monitor.Clear()
	if monitor.Count() != 0 {
		t.Errorf("expected empty monitor after Clear, got %d", monitor.Count())
	}
}

func TestMonitor_AggregateHealth(t *testing.T) {
	monitor := NewMonitor()

	agg := monitor.AggregateHealth("router")
	if !agg.IsHealthy() {
		t.Errorf("empty monitor should aggregate healthy, got %s", agg.Status)
	}

	monitor.UpdateHealthy("z-sink", "ok")
	monitor.RecordFailure("a-sink", errors.New("boom"))

	agg = monitor.AggregateHealth("router")
	if !agg.IsDegraded() {
		t.Errorf("expected degraded aggregate, got %s", agg.Status)
	}
	if len(agg.SubStatuses) != 2 || agg.SubStatuses[0].Component != "a-sink" {
		t.Errorf("sub statuses should be sorted, got %+v", agg.SubStatuses)
	}

	monitor.UpdateUnhealthy("nats", "connection lost")
	if agg = monitor.AggregateHealth("router"); !agg.IsUnhealthy() {
		t.Errorf("expected unhealthy aggregate, got %s", agg.Status)
	}
}

func TestMonitor_Concurrent(t *testing.T) {
	monitor := NewMonitor()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if j%2 == 0 {
					monitor.RecordFailure("shared", errors.New("x"))
				} else {
					monitor.RecordSuccess("shared")
				}
				_ = monitor.AggregateHealth("router")
			}
		}(i)
	}
	wg.Wait()

	st, _ := monitor.Get("shared")
	if st.Metrics.ErrorCount != 500 {
		t.Errorf("expected 500 errors, got %d", st.Metrics.ErrorCount)
	}
}
