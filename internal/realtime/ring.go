package realtime

// ring is a fixed-capacity circular buffer of events. Callers hold the
// engine lock; the ring itself is not safe for concurrent use.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Event, capacity), nextSeq: 1}
}

// push stores e, assigning the next sequence number and overwriting the
// oldest entry when full. It returns the stored event.
func (r *ring) push(e Event) Event {
	e.Seq = r.nextSeq
	r.nextSeq++
	if len(r.buf) == 0 {
		return e
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return e
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
	return e
}

// snapshotRoom returns retained events scoped to room (or broadcast), oldest
// first, best-effort within the ring capacity.
func (r *ring) snapshotRoom(room string) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Room == room || ev.Room == "" {
			out = append(out, ev)
		}
	}
	return out
}

// since returns retained events with Seq greater than seq, oldest first.
func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
