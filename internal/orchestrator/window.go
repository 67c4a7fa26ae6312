package orchestrator

// SuccessWindow remembers the outcomes of the last N episodes.
type SuccessWindow struct {
	buf  []bool
	next int
	full bool
}

// NewSuccessWindow creates a window of size n (at least 1).
func NewSuccessWindow(n int) *SuccessWindow {
	return &SuccessWindow{buf: make([]bool, max(n, 1))}
}

// Record adds an outcome, evicting the oldest when full.
func (w *SuccessWindow) Record(success bool) {
	w.buf[w.next] = success
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

// Len returns the number of remembered outcomes.
func (w *SuccessWindow) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Rate returns the success fraction, or false when empty.
func (w *SuccessWindow) Rate() (float64, bool) {
	n := w.Len()
	if n == 0 {
		return 0, false
	}
	wins := 0
	for _, ok := range w.buf[:n] {
		if ok {
			wins++
		}
	}
	return float64(wins) / float64(n), true
}
