package status

// DefaultWindowSize is the number of calls the health percentage covers.
const DefaultWindowSize = 30

// window is a fixed-capacity FIFO of call outcomes.
type window struct {
	buf   []bool
	start int
}

// newWindow returns a full window of successes, the state of a fresh session.
func newWindow(size int) *window {
	w := &window{buf: make([]bool, size)}
	for i := range w.buf {
		w.buf[i] = true
	}
	return w
}

// push evicts the oldest outcome and appends ok.
func (w *window) push(ok bool) {
	w.buf[w.start] = ok
	w.start = (w.start + 1) % len(w.buf)
}

// health returns the percentage of successes, rounded to one decimal.
func (w *window) health() float64 {
	var sum int
	for _, ok := range w.buf {
		if ok {
			sum++
		}
	}
	return round(100*float64(sum)/float64(len(w.buf)), 1)
}

func (w *window) clone() *window {
	buf := make([]bool, len(w.buf))
	copy(buf, w.buf)
	return &window{buf: buf, start: w.start}
}
