// Package scheduler implements the order scheduler: the actor that owns
// the OrderTable, DedupIndex, Queue and WorkerPool (spec.md §3/§4.1),
// drives the admission/reap loop, and answers SUBMIT/CHECK/EVICT exchanges
// from the front-end.
//
// Grounded on original_source/src/gis-map-server/scheduler.py's Scheduler
// and Worker classes. Where the original runs as a separate OS process
// connected to the front-end by a multiprocessing.Pipe, this
// implementation runs the same state-owning loop as a single goroutine
// reachable only through channel messages — see SPEC_FULL.md §2 for the
// rationale.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gis-map-server/internal/metrics"
	"gis-map-server/internal/order"
	"gis-map-server/internal/render"
	"gis-map-server/internal/resp"
)

// admissionTick is how often the run loop drains messages and then
// attempts admission/reap, per spec.md §4.1 step 3 ("Sleep ≈ 100 ms").
const admissionTick = 100 * time.Millisecond

type msgTag int

const (
	tagSubmit msgTag = 0
	tagCheck  msgTag = 1
	tagEvict  msgTag = 2
)

// request is the single envelope type carried over the inbound channel,
// tagged the way spec.md §9 documents ("Tag values 0/1/2 correspond to
// SUBMIT/CHECK/EVICT").
type request struct {
	tag     msgTag
	params  map[string]string // SUBMIT
	id      int64             // CHECK
	pincode string            // CHECK
	ids     []int64           // EVICT
}

// reply is the single envelope type carried back over the outbound
// channel.
type reply struct {
	tag     msgTag
	id      int64  // SUBMIT
	pincode string // SUBMIT
	ok      bool   // SUBMIT
	status  int    // CHECK
	ack     bool   // EVICT
}

// Scheduler is the order-scheduling actor. Exactly one goroutine (started
// by Run) ever touches table/dedup/queue/pool/counter, so none of that
// state needs its own lock; mu only serializes front-end callers against
// each other, matching spec.md §5 ("only one Front-end request may be
// mid-exchange with the Scheduler at a time").
type Scheduler struct {
	table   *order.Table
	dedup   *order.DedupIndex
	queue   *order.Queue
	pool    *workerPool
	counter int64

	enqueuedAt map[int64]time.Time
	startedAt  map[int64]time.Time

	spawner *render.Spawner
	metrics *metrics.Recorder
	logger  *zap.SugaredLogger

	in  chan request
	out chan reply

	mu chanMutex
}

// chanMutex is a mutex built on a one-slot buffered channel: Lock sends
// into the slot (blocking while it is full) and Unlock empties it. The
// name reflects what it guards ("the channel"), not arbitrary state.
type chanMutex struct{ locked chan struct{} }

func newChanMutex() chanMutex { return chanMutex{locked: make(chan struct{}, 1)} }
func (m chanMutex) Lock()     { m.locked <- struct{}{} }
func (m chanMutex) Unlock()   { <-m.locked }

// New builds a Scheduler with the given slot capacity and renderer
// spawner. logger may be nil (defaults to a no-op logger).
func New(slots int, spawner *render.Spawner, rec *metrics.Recorder, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rec == nil {
		rec = metrics.NewRecorder()
	}
	return &Scheduler{
		table:      order.NewTable(),
		dedup:      order.NewDedupIndex(),
		queue:      order.NewQueue(),
		pool:       newWorkerPool(slots),
		enqueuedAt: make(map[int64]time.Time),
		startedAt:  make(map[int64]time.Time),
		spawner:    spawner,
		metrics:    rec,
		logger:     logger,
		in:         make(chan request, 8),
		out:        make(chan reply, 1),
		mu:         newChanMutex(),
	}
}

// Run drives the drain -> admit -> reap -> sleep loop described in
// spec.md §4.1 until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.drainMessages()
		s.admitQueued(ctx)
		s.reapFinished()

		select {
		case <-ctx.Done():
			return
		case <-time.After(admissionTick):
		}
	}
}

// drainMessages fully drains the inbound channel before admission/reaping
// runs, per spec.md §4.1 ("Draining rule: ... so the Front-end is never
// starved while renderers run").
func (s *Scheduler) drainMessages() {
	for {
		select {
		case req := <-s.in:
			s.sendReply(s.handle(req))
		default:
			return
		}
	}
}

// sendReply delivers r without ever blocking the scheduler loop. Because
// only one front-end exchange is ever in flight (mu serializes callers),
// the out channel holds at most one stale reply — left behind by an
// exchange whose caller already gave up on timeout — which this drops
// before depositing the new one.
func (s *Scheduler) sendReply(r reply) {
	select {
	case s.out <- r:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	s.out <- r
}

func (s *Scheduler) handle(req request) reply {
	switch req.tag {
	case tagSubmit:
		return s.handleSubmit(req)
	case tagCheck:
		return s.handleCheck(req)
	case tagEvict:
		return s.handleEvict(req)
	default:
		return reply{tag: req.tag}
	}
}

func (s *Scheduler) handleSubmit(req request) reply {
	if !Validate(req.params) {
		return reply{tag: tagSubmit, ok: false}
	}

	if id, found := s.dedup.Lookup(req.params); found {
		o, _ := s.table.Get(id) // invariant 3 guarantees presence
		return reply{tag: tagSubmit, id: id, pincode: o.Pincode, ok: true}
	}

	s.counter++
	id := s.counter
	pincode := generatePincode()
	paramsCopy := make(map[string]string, len(req.params))
	for k, v := range req.params {
		paramsCopy[k] = v
	}
	s.table.Put(&order.Order{ID: id, Params: paramsCopy, Status: order.StatusProcessing, Pincode: pincode})
	s.dedup.Put(paramsCopy, id)
	s.queue.Push(id)
	s.enqueuedAt[id] = time.Now()

	return reply{tag: tagSubmit, id: id, pincode: pincode, ok: true}
}

func (s *Scheduler) handleCheck(req request) reply {
	o, ok := s.table.Get(req.id)
	if !ok {
		return reply{tag: tagCheck, status: resp.StatusInvalidParam}
	}
	if o.Pincode != req.pincode {
		s.logger.Debugw("pincode mismatch", "order_id", req.id)
		return reply{tag: tagCheck, status: resp.StatusInvalidParam}
	}
	return reply{tag: tagCheck, status: int(o.Status)}
}

func (s *Scheduler) handleEvict(req request) reply {
	for _, id := range req.ids {
		o, ok := s.table.Get(id)
		if !ok {
			continue
		}
		s.dedup.Delete(o.Params)
		s.table.Delete(id)
		s.queue.Remove(id)
		delete(s.enqueuedAt, id)
		delete(s.startedAt, id)
	}
	s.metrics.RecordEviction(len(req.ids))
	return reply{tag: tagEvict, ack: true}
}

// admitQueued admits at most one queued order per tick: if a worker slot
// is free and the queue is non-empty, it pops the head id and spawns its
// renderer. scheduler.py's start_scheduler loop does the same single
// conditional admission ("if worker.check_free_slot(): if self.queue:
// ..."), even when more than one slot is free — a second slot only gets
// filled on the loop's next iteration, per spec.md §4.1 step 1.
func (s *Scheduler) admitQueued(ctx context.Context) {
	if !s.pool.checkFreeSlot() {
		return
	}
	id, ok := s.queue.Pop()
	if !ok {
		return
	}
	o, ok := s.table.Get(id)
	if !ok {
		return // evicted while queued; nothing to admit
	}

	if wait, ok := s.enqueuedAt[id]; ok {
		s.metrics.RecordSpawn(float64(time.Since(wait)) / 1e6)
		delete(s.enqueuedAt, id)
	}

	proc, err := s.spawner.Spawn(ctx, id, renderParams(o.Params))
	if err != nil {
		s.logger.Errorw("renderer spawn failed", "order_id", id, "error", err)
		o.Status = order.StatusRenderFailed
		return
	}
	s.startedAt[id] = time.Now()
	s.pool.fillSlot(id, proc)
}

// reapFinished non-blockingly probes every occupied slot for exit, per
// spec.md §4.1 step 2.
func (s *Scheduler) reapFinished() {
	for _, slot := range s.pool.activeSlots() {
		code, done := slot.proc.Poll()
		if !done {
			continue
		}

		o, ok := s.table.Get(slot.id)
		if ok {
			switch code {
			case render.ExitReady:
				o.Status = order.StatusReady
			case render.ExitNoMem:
				o.Status = order.StatusNoMem
			default:
				o.Status = order.StatusRenderFailed
			}
		}

		if started, ok := s.startedAt[slot.id]; ok {
			s.metrics.RecordCompletion(float64(time.Since(started)) / 1e6)
			delete(s.startedAt, slot.id)
		}
		s.pool.freeSlot(slot.idx)
	}
}

func renderParams(params map[string]string) render.Params {
	return render.Params{
		Lat:    params["lat"],
		Lon:    params["lon"],
		Scale:  params["scale"],
		W:      params["w"],
		H:      params["h"],
		Format: params["format"],
	}
}

// --- client-facing exchanges ---
//
// Each of Submit/Check/Evict models one request/reply round-trip over the
// shared channel pair: serialize against other callers (mu), drain any
// stale reply left by a previous timed-out exchange (spec.md §4.3
// "Channel-drain rule" / §9 "Channel re-sync"), send, then take the next
// reply off the out channel or give up at the per-operation deadline.
// Replies carry no request id and their tag is not compared, so a reply
// that arrives late for an earlier, already timed-out request is taken as
// this request's reply.

// Submit sends a SUBMIT message and waits up to timeout for a reply.
// timedOut is true if the Scheduler did not answer in time.
func (s *Scheduler) Submit(params map[string]string, timeout time.Duration) (id int64, pincode string, ok bool, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainStaleReplies()

	s.in <- request{tag: tagSubmit, params: params}
	r, ok2 := s.awaitReply(timeout)
	if !ok2 {
		return 0, "", false, true
	}
	return r.id, r.pincode, r.ok, false
}

// Check sends a CHECK message and waits up to timeout for a reply.
func (s *Scheduler) Check(id int64, pincode string, timeout time.Duration) (status int, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainStaleReplies()

	s.in <- request{tag: tagCheck, id: id, pincode: pincode}
	r, ok := s.awaitReply(timeout)
	if !ok {
		return 0, true
	}
	return r.status, false
}

// Evict sends an EVICT message and waits up to timeout for acknowledgement.
func (s *Scheduler) Evict(ids []int64, timeout time.Duration) (ack bool, timedOut bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainStaleReplies()

	s.in <- request{tag: tagEvict, ids: ids}
	r, ok := s.awaitReply(timeout)
	if !ok {
		return false, true
	}
	return r.ack, false
}

func (s *Scheduler) drainStaleReplies() {
	for {
		select {
		case <-s.out:
		default:
			return
		}
	}
}

func (s *Scheduler) awaitReply(timeout time.Duration) (reply, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-s.out:
		return r, true
	case <-timer.C:
		return reply{}, false
	}
}
