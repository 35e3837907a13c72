package endpoint

import "time"

// PendingEdit is one locally made count change waiting out its debounce
// window before transmission.
type PendingEdit struct {
	Label      string
	Name       string
	Count      int
	EnqueuedAt time.Time
	Deadline   time.Time
}

// PendingQueue coalesces rapid edits per slot: every new edit to a label
// restarts that label's debounce deadline, so a burst of taps flushes as a
// single update carrying the final count.
type PendingQueue struct {
	debounce time.Duration
	entries  map[string]*PendingEdit
}

func NewPendingQueue(debounce time.Duration) *PendingQueue {
	return &PendingQueue{
		debounce: debounce,
		entries:  make(map[string]*PendingEdit),
	}
}

// Put records an edit, replacing any pending edit for the same label and
// resetting its flush deadline.
func (q *PendingQueue) Put(label, name string, count int, now time.Time) {
	if e, ok := q.entries[label]; ok {
		e.Count = count
		e.Deadline = now.Add(q.debounce)
		return
	}
	q.entries[label] = &PendingEdit{
		Label:      label,
		Name:       name,
		Count:      count,
		EnqueuedAt: now,
		Deadline:   now.Add(q.debounce),
	}
}

// Due returns one entry whose deadline has elapsed, or nil. Flushing goes
// one entry at a time through the ack path.
func (q *PendingQueue) Due(now time.Time) *PendingEdit {
	var due *PendingEdit
	for _, e := range q.entries {
		if e.Deadline.After(now) {
			continue
		}
		if due == nil || e.Deadline.Before(due.Deadline) {
			due = e
		}
	}
	return due
}

// Resolve removes the entry for a label, but only if its count still
// matches what was transmitted; an edit made while the ack was in flight
// stays queued with its new deadline.
func (q *PendingQueue) Resolve(label string, sentCount int) {
	if e, ok := q.entries[label]; ok && e.Count == sentCount {
		delete(q.entries, label)
	}
}

// Drop removes an entry unconditionally (failed flush).
func (q *PendingQueue) Drop(label string) {
	delete(q.entries, label)
}

// Relabel moves a pending entry to a corrected label.
func (q *PendingQueue) Relabel(old, new string) {
	if old == new {
		return
	}
	if e, ok := q.entries[old]; ok {
		delete(q.entries, old)
		e.Label = new
		q.entries[new] = e
	}
}

func (q *PendingQueue) Len() int { return len(q.entries) }
