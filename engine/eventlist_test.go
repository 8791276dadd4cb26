package engine

import "testing"

func TestScheduleFIFOAtEqualTime(t *testing.T) {
	el := NewEventList()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		el.Schedule(nil, nil, func(el *EventList, _ any, _ any) any {
			order = append(order, i)
			return nil
		}, 10)
	}
	el.RunUntil(1000)
	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order at equal time, got %v", order)
		}
	}
}

func TestTriggerNowIsLIFOAndDrainsFirst(t *testing.T) {
	el := NewEventList()
	var order []string
	el.Schedule(nil, nil, func(el *EventList, _ any, _ any) any {
		order = append(order, "timed")
		return nil
	}, 0)
	el.TriggerNow(nil, nil, func(el *EventList, _ any, _ any) any {
		order = append(order, "imm1")
		return nil
	})
	el.TriggerNow(nil, nil, func(el *EventList, _ any, _ any) any {
		order = append(order, "imm2")
		return nil
	})
	el.RunUntil(1000)
	want := []string{"imm2", "imm1", "timed"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	el := NewEventList()
	fired := false
	h := el.Schedule(nil, nil, func(el *EventList, _ any, _ any) any {
		fired = true
		return nil
	}, 5)
	el.Cancel(h)
	el.Cancel(h) // second cancel must be a no-op, not a panic or double-count
	el.RunUntil(100)
	if fired {
		t.Fatal("cancelled event fired")
	}
	if el.Stats().Cancelled != 1 {
		t.Fatalf("expected exactly one cancellation recorded, got %d", el.Stats().Cancelled)
	}
}

func TestScheduleInPastPanics(t *testing.T) {
	el := NewEventList()
	el.Schedule(nil, nil, func(el *EventList, _ any, _ any) any { return nil }, 100)
	el.DoNextEvent() // advances now to 100

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic scheduling in the past")
		}
	}()
	el.ScheduleAt(nil, nil, func(el *EventList, _ any, _ any) any { return nil }, 50)
}

// TestEventListStress reproduces spec.md scenario 6: a million events
// scheduled in reverse-time order must fire in time order, with the
// clock monotonic and no event lost or duplicated.
func TestEventListStress(t *testing.T) {
	const n = 1_000_000
	el := NewEventList()
	for i := n; i >= 1; i-- {
		i := i
		el.Schedule(nil, nil, func(el *EventList, _ any, _ any) any {
			if el.Now() != Time(i) {
				t.Fatalf("fired out of time order: expected %d got %d", i, el.Now())
			}
			return nil
		}, Time(i))
	}
	var lastTime Time = -1
	count := 0
	for el.DoNextEvent() {
		if el.Now() < lastTime {
			t.Fatalf("clock moved backward: %d after %d", el.Now(), lastTime)
		}
		lastTime = el.Now()
		count++
	}
	if count != n {
		t.Fatalf("expected %d events fired, got %d", n, count)
	}
	if el.Stats().Fired != n {
		t.Fatalf("stats mismatch: fired=%d want %d", el.Stats().Fired, n)
	}
}
