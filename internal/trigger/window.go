package trigger

// Window is a fixed-size ring of per-frame motion flags. It starts with every
// slot false, so it saturates only after a full run of motion frames.
type Window struct {
	slots []bool
	next  int
	hot   int
}

// NewWindow returns a window with size slots (minimum 1).
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{slots: make([]bool, size)}
}

// Push records a sample, evicting the oldest.
func (w *Window) Push(motion bool) {
	if w.slots[w.next] {
		w.hot--
	}
	w.slots[w.next] = motion
	if motion {
		w.hot++
	}
	w.next = (w.next + 1) % len(w.slots)
}

// Saturated reports whether every slot holds motion.
func (w *Window) Saturated() bool {
	return w.hot == len(w.slots)
}

// Len is the fixed window size.
func (w *Window) Len() int {
	return len(w.slots)
}

// Reset clears every slot.
func (w *Window) Reset() {
	clear(w.slots)
	w.next = 0
	w.hot = 0
}
