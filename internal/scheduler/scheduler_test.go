package scheduler

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"gis-map-server/internal/render"
	"gis-map-server/internal/resp"
)

func testParams(scale string) map[string]string {
	return map[string]string{"lat": "60.0", "lon": "30.0", "scale": scale, "w": "256", "h": "256", "format": "image/png"}
}

func newTestScheduler(t *testing.T, slots int) (*Scheduler, context.CancelFunc) {
	t.Helper()
	sp := render.NewSpawner("/bin/true", "http://127.0.0.1:0", "1", nil)
	s := New(slots, sp, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	return s, cancel
}

func TestSubmitInvalidParamsRejectedWithoutConsumingCounter(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	_, _, ok, timedOut := s.Submit(map[string]string{"lat": "x"}, time.Second)
	if timedOut || ok {
		t.Fatalf("expected ok=false for missing fields, got ok=%v timedOut=%v", ok, timedOut)
	}

	id1, _, ok, _ := s.Submit(testParams("10"), time.Second)
	if !ok || id1 != 1 {
		t.Fatalf("first valid submit should get id=1, got id=%d ok=%v", id1, ok)
	}
}

func TestSubmitInvalidLatNonNumeric(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	p := testParams("10")
	p["lat"] = "not-a-float"
	_, _, ok, timedOut := s.Submit(p, time.Second)
	if ok || timedOut {
		t.Fatalf("non-numeric lat must be rejected: ok=%v timedOut=%v", ok, timedOut)
	}
}

func TestSubmitDedupReturnsSameIDAndPincode(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	p := testParams("10")
	id1, pin1, ok, _ := s.Submit(p, time.Second)
	if !ok {
		t.Fatalf("first submit failed")
	}
	id2, pin2, ok, _ := s.Submit(p, time.Second)
	if !ok || id1 != id2 || pin1 != pin2 {
		t.Fatalf("duplicate submit should dedup: id1=%d id2=%d pin1=%s pin2=%s", id1, id2, pin1, pin2)
	}

	p2 := testParams("11")
	id3, _, ok, _ := s.Submit(p2, time.Second)
	if !ok || id3 == id1 {
		t.Fatalf("differing scale must get a distinct id, got %d (same as %d)", id3, id1)
	}
}

func TestSubmitIDsStrictlyIncreasing(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	var last int64
	for i := 0; i < 5; i++ {
		id, _, ok, _ := s.Submit(testParams(string(rune('0'+i))), time.Second)
		if !ok {
			t.Fatalf("submit %d failed", i)
		}
		if id <= last {
			t.Fatalf("id=%d must be > previous id=%d", id, last)
		}
		last = id
	}
}

func TestCheckWrongPincodeNeverLeaksStatus(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	id, _, ok, _ := s.Submit(testParams("10"), time.Second)
	if !ok {
		t.Fatalf("submit failed")
	}
	status, timedOut := s.Check(id, "WRONG1", time.Second)
	if timedOut || status != resp.StatusInvalidParam {
		t.Fatalf("wrong pincode should yield InvalidParam, got status=%d timedOut=%v", status, timedOut)
	}
}

func TestCheckUnknownIDIsInvalidParam(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	status, timedOut := s.Check(999, "whatever", time.Second)
	if timedOut || status != resp.StatusInvalidParam {
		t.Fatalf("unknown id should yield InvalidParam, got status=%d timedOut=%v", status, timedOut)
	}
}

func TestAdmissionReapsTrueRendererToTerminalStatus(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	id, pin, ok, _ := s.Submit(testParams("10"), time.Second)
	if !ok {
		t.Fatalf("submit failed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		// /bin/true exits 0, which the scheduler maps to RenderFailed
		// (only exit code 200 means ready) — this test only asserts that
		// admission eventually reaps the slot and leaves Processing.
		status, timedOut := s.Check(id, pin, time.Second)
		if timedOut {
			t.Fatalf("check timed out")
		}
		if status != resp.StatusInvalidParam && status != 202 {
			return // reaped to a terminal status; admission+reap loop worked
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("order never left Processing within deadline")
}

func TestEvictRemovesFromTableAndDedup(t *testing.T) {
	s, cancel := newTestScheduler(t, 1)
	defer cancel()

	id, pin, ok, _ := s.Submit(testParams("10"), time.Second)
	if !ok {
		t.Fatalf("submit failed")
	}

	// give the admission loop a chance to dequeue it so a subsequent
	// resubmission with the same params is free to allocate a new id.
	time.Sleep(150 * time.Millisecond)

	ack, timedOut := s.Evict([]int64{id}, time.Second)
	if timedOut || !ack {
		t.Fatalf("evict should ack: ack=%v timedOut=%v", ack, timedOut)
	}

	status, timedOut := s.Check(id, pin, time.Second)
	if timedOut || status != resp.StatusInvalidParam {
		t.Fatalf("evicted id must be unknown afterwards, got status=%d", status)
	}

	id2, _, ok, _ := s.Submit(testParams("10"), time.Second)
	if !ok || id2 == id {
		t.Fatalf("resubmission after evict must get a new id, got id=%d (evicted %d) ok=%v", id2, id, ok)
	}
}

func TestConcurrentSubmitsAreSerializedAndAllSucceed(t *testing.T) {
	s, cancel := newTestScheduler(t, 2)
	defer cancel()

	const n = 20
	var wg sync.WaitGroup
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, _, ok, timedOut := s.Submit(testParams(strconv.Itoa(1000+i)), 2*time.Second)
			if !ok || timedOut {
				t.Errorf("submit %d failed: ok=%v timedOut=%v", i, ok, timedOut)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, id := range ids {
		if id == 0 || seen[id] {
			t.Fatalf("duplicate or zero id among concurrent distinct submissions: %v", ids)
		}
		seen[id] = true
	}
}
