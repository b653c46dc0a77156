package timeseries

import "github.com/vjranagit/timeseries/pkg/types"

// pointDeque is a slice-backed double-ended buffer. Live points occupy
// buf[head:tail]; spare capacity on both sides makes pushes at either end
// amortized O(1). Inserts and removals in the middle shift the shorter side
// and cost O(n).
type pointDeque struct {
	buf  []types.TimePoint
	head int
	tail int
}

const minDequeCapacity = 8

func (d *pointDeque) len() int {
	return d.tail - d.head
}

// items returns the live points. The slice aliases the buffer.
func (d *pointDeque) items() []types.TimePoint {
	return d.buf[d.head:d.tail]
}

func (d *pointDeque) at(i int) *types.TimePoint {
	return &d.buf[d.head+i]
}

func (d *pointDeque) first() types.TimePoint {
	return d.buf[d.head]
}

func (d *pointDeque) last() types.TimePoint {
	return d.buf[d.tail-1]
}

// grow reallocates with room on both ends, keeping points centered
func (d *pointDeque) grow() {
	n := d.len()
	capacity := 2*n + minDequeCapacity
	buf := make([]types.TimePoint, capacity)
	head := (capacity - n) / 2
	copy(buf[head:], d.items())
	d.buf = buf
	d.head = head
	d.tail = head + n
}

func (d *pointDeque) pushBack(p types.TimePoint) {
	if d.tail == len(d.buf) {
		d.grow()
	}
	d.buf[d.tail] = p
	d.tail++
}

func (d *pointDeque) pushFront(p types.TimePoint) {
	if d.head == 0 {
		d.grow()
	}
	d.head--
	d.buf[d.head] = p
}

// insert places p at position i (0 <= i <= len)
func (d *pointDeque) insert(i int, p types.TimePoint) {
	n := d.len()
	switch {
	case i == n:
		d.pushBack(p)
		return
	case i == 0:
		d.pushFront(p)
		return
	}

	frontRoom := d.head > 0
	backRoom := d.tail < len(d.buf)
	if !frontRoom && !backRoom {
		d.grow()
		frontRoom, backRoom = true, true
	}

	if frontRoom && (i < n/2 || !backRoom) {
		// shift [0, i) one slot left
		copy(d.buf[d.head-1:], d.buf[d.head:d.head+i])
		d.head--
		d.buf[d.head+i] = p
		return
	}
	// shift [i, n) one slot right
	copy(d.buf[d.head+i+1:], d.buf[d.head+i:d.tail])
	d.tail++
	d.buf[d.head+i] = p
}

// removeAt drops the point at position i (0 <= i < len)
func (d *pointDeque) removeAt(i int) {
	n := d.len()
	if i < n/2 {
		copy(d.buf[d.head+1:], d.buf[d.head:d.head+i])
		d.head++
	} else {
		copy(d.buf[d.head+i:], d.buf[d.head+i+1:d.tail])
		d.tail--
	}
	if d.head == d.tail {
		d.reset()
	}
}

// keep retains the points in [start, end) of the current sequence
func (d *pointDeque) keep(start, end int) {
	if start >= end {
		d.reset()
		return
	}
	d.tail = d.head + end
	d.head += start
}

// reset empties the deque, keeping the allocation centered for reuse
func (d *pointDeque) reset() {
	mid := len(d.buf) / 2
	d.head = mid
	d.tail = mid
}

func (d *pointDeque) clone() pointDeque {
	n := d.len()
	capacity := n + minDequeCapacity
	buf := make([]types.TimePoint, capacity)
	head := (capacity - n) / 2
	copy(buf[head:], d.items())
	return pointDeque{buf: buf, head: head, tail: head + n}
}
