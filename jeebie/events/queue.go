// Package events implements the core's future-event scheduler: a small
// fixed-kind priority queue keyed by absolute clock cycle, with O(1)
// lookup by kind via a parallel fixed-size array. No heap allocation, no
// channels - just a slice kept sorted by descending cycle so the earliest
// event sits at the tail, ready to pop.
package events

import "github.com/rook-valley/gbcore/jeebie/clock"

// Kind identifies one of the handful of future events the core ever
// schedules. There are at most Count of these live at once.
type Kind uint8

const (
	VBlankIRQ Kind = iota
	LYCIRQ
	Mode2IRQ
	Mode0IRQ
	SerialDone
	TimerIRQ
	Unhalt
	NextEmptyFrame
	OAMDMAStart
	HDMAStart

	// Count is the number of distinct event kinds; also the size of the
	// parallel active-cycle lookup array.
	Count
)

// None is returned by Poll when nothing is due yet.
const None = Kind(255)

type entry struct {
	kind  Kind
	cycle int32
}

// Queue is a multiset of scheduled events, at most one per Kind, ordered
// by descending cycle (earliest event at the end of the slice so Poll/pop
// is an O(1) slice-shrink instead of a shift).
type Queue struct {
	entries []entry
	// activeCycle mirrors the queue for O(1) "is kind scheduled, and
	// when" queries without scanning entries.
	activeCycle [Count]int32
}

// New creates an empty event queue.
func New() *Queue {
	q := &Queue{entries: make([]entry, 0, int(Count))}
	for i := range q.activeCycle {
		q.activeCycle[i] = clock.NoCycle
	}
	return q
}

// Schedule inserts (or replaces, if already present) the entry for kind at
// the given absolute cycle, maintaining descending-cycle order.
func (q *Queue) Schedule(kind Kind, cycle int32) {
	q.Remove(kind)

	// Insertion point: first index (from the front) whose cycle is <=
	// the new cycle, since the slice is sorted descending and the tail
	// holds the earliest (smallest) cycle.
	i := 0
	for i < len(q.entries) && q.entries[i].cycle > cycle {
		i++
	}
	q.entries = append(q.entries, entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = entry{kind: kind, cycle: cycle}

	q.activeCycle[kind] = cycle
}

// Poll removes and returns the earliest scheduled event whose cycle is <=
// now, or None if there isn't one.
func (q *Queue) Poll(now int32) Kind {
	if len(q.entries) == 0 {
		return None
	}
	last := len(q.entries) - 1
	e := q.entries[last]
	if e.cycle > now {
		return None
	}
	q.entries = q.entries[:last]
	q.activeCycle[e.kind] = clock.NoCycle
	return e.kind
}

// Peek reports the cycle of the earliest scheduled event without removing
// it, or NoCycle if the queue is empty. The facade uses this to fast
// forward the clock while the CPU is halted or frozen.
func (q *Queue) Peek() int32 {
	if len(q.entries) == 0 {
		return clock.NoCycle
	}
	return q.entries[len(q.entries)-1].cycle
}

// CycleOf returns the scheduled cycle for kind, or NoCycle if it isn't
// currently scheduled.
func (q *Queue) CycleOf(kind Kind) int32 {
	return q.activeCycle[kind]
}

// Remove drops any pending entry for kind. Idempotent.
func (q *Queue) Remove(kind Kind) {
	if q.activeCycle[kind] == clock.NoCycle {
		return
	}
	for i, e := range q.entries {
		if e.kind == kind {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.activeCycle[kind] = clock.NoCycle
}

// SetBackClock rebases every stored cycle by subtracting offset, mirroring
// clock.Clock.SetBackClock.
func (q *Queue) SetBackClock(offset int32) {
	for i := range q.entries {
		q.entries[i].cycle -= offset
	}
	for k := range q.activeCycle {
		if q.activeCycle[k] != clock.NoCycle {
			q.activeCycle[k] -= offset
		}
	}
}
