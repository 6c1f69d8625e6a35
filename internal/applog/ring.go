package applog

// ring is a fixed-capacity FIFO-evicting buffer. Index 0 is the oldest entry.
type ring struct {
	buf  []Entry
	head int
	size int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{buf: make([]Entry, capacity)}
}

// push appends e and reports whether the oldest entry was evicted.
func (r *ring) push(e Entry) bool {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = e
		r.size++
		return false
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	return true
}

func (r *ring) len() int { return r.size }

func (r *ring) at(i int) Entry {
	return r.buf[(r.head+i)%len(r.buf)]
}

// slice copies entries [from, to) in buffer order.
func (r *ring) slice(from, to int) []Entry {
	from = max(from, 0)
	to = min(to, r.size)
	if from >= to {
		return []Entry{}
	}
	out := make([]Entry, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, r.at(i))
	}
	return out
}

func (r *ring) tail(n int) []Entry {
	return r.slice(r.size-n, r.size)
}

func (r *ring) all() []Entry {
	return r.slice(0, r.size)
}

func (r *ring) indexOf(id string) int {
	for i := 0; i < r.size; i++ {
		if r.at(i).ID == id {
			return i
		}
	}
	return -1
}

func (r *ring) reset() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}
