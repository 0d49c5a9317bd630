// Package order holds the pure data model for a rendering order: the
// Order itself, the table of all known orders, the dedup index that
// collapses identical submissions, and the FIFO admission queue. None of
// these types know about rendering, HTTP, or process management — that
// orchestration lives in internal/scheduler, which owns one instance of
// each of these per spec.md §4.1 ("The Scheduler owns OrderTable,
// DedupIndex, Queue, WorkerPool, and the monotonic counter").
package order

import "strings"

// Status is the lifecycle state of an Order, per spec.md §3.
type Status int

const (
	StatusProcessing   Status = 202
	StatusReady        Status = 200
	StatusInvalidParam Status = 400
	StatusDone         Status = 410 // reserved, never assigned — see SPEC_FULL.md §11
	StatusNoMem        Status = 418
	StatusRenderFailed Status = 500
)

// RequiredParams is the canonical field order used both for validation and
// for the DedupIndex tuple key (spec.md §3's "canonical field order").
var RequiredParams = [6]string{"lat", "lon", "scale", "w", "h", "format"}

// Order represents one rendering job.
type Order struct {
	ID      int64
	Params  map[string]string
	Status  Status
	Pincode string
}

// DedupKey returns the canonical tuple representation of params used to
// key the DedupIndex: the six required values joined in RequiredParams
// order. Submissions with identical params collapse to the same key
// regardless of how their query string happened to be ordered.
func DedupKey(params map[string]string) string {
	var b strings.Builder
	for i, k := range RequiredParams {
		if i > 0 {
			b.WriteByte('\x1f') // unit separator: params themselves may contain '=' or '&'
		}
		b.WriteString(params[k])
	}
	return b.String()
}

// Table maps id -> Order. Insertion-ordered iteration is not required
// (spec.md §3), so a plain map suffices.
type Table struct {
	orders map[int64]*Order
}

func NewTable() *Table { return &Table{orders: make(map[int64]*Order)} }

func (t *Table) Put(o *Order) { t.orders[o.ID] = o }

func (t *Table) Get(id int64) (*Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

func (t *Table) Delete(id int64) { delete(t.orders, id) }

func (t *Table) Len() int { return len(t.orders) }

// DedupIndex maps the canonical params tuple -> id, per spec.md §3.
type DedupIndex struct {
	byKey map[string]int64
}

func NewDedupIndex() *DedupIndex { return &DedupIndex{byKey: make(map[string]int64)} }

func (d *DedupIndex) Put(params map[string]string, id int64) { d.byKey[DedupKey(params)] = id }

func (d *DedupIndex) Lookup(params map[string]string) (int64, bool) {
	id, ok := d.byKey[DedupKey(params)]
	return id, ok
}

func (d *DedupIndex) Delete(params map[string]string) { delete(d.byKey, DedupKey(params)) }

// Queue is a FIFO of ids awaiting admission into a worker slot.
type Queue struct {
	ids []int64
}

func NewQueue() *Queue { return &Queue{} }

func (q *Queue) Push(id int64) { q.ids = append(q.ids, id) }

// Pop removes and returns the head of the queue. ok is false if empty.
func (q *Queue) Pop() (id int64, ok bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id = q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Remove deletes the first occurrence of id from the queue, silently
// no-op'ing if it is not present (spec.md §4.1's EVICT: "attempt to
// remove from Queue, silent if not queued").
func (q *Queue) Remove(id int64) {
	for i, v := range q.ids {
		if v == id {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			return
		}
	}
}

func (q *Queue) Len() int { return len(q.ids) }
