package broker

// historyCap bounds the per-topic event history.
const historyCap = 100

// history is a fixed-capacity FIFO of encoded event frames with strictly
// oldest-first eviction. Storing the encoded frame means a replayed event is
// byte-identical to the live one. Not safe for concurrent use; callers hold
// the owning topic's lock.
type history struct {
	frames [][]byte
	head   int
	size   int
}

func newHistory(capacity int) *history {
	return &history{frames: make([][]byte, capacity)}
}

// append stores a frame, evicting the oldest when the buffer is full.
func (h *history) append(frame []byte) {
	if h.size < len(h.frames) {
		h.frames[(h.head+h.size)%len(h.frames)] = frame
		h.size++
		return
	}
	h.frames[h.head] = frame
	h.head = (h.head + 1) % len(h.frames)
}

// tail returns the last min(n, size) frames in insertion order.
func (h *history) tail(n int) [][]byte {
	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return nil
	}
	out := make([][]byte, n)
	start := h.head + h.size - n
	for i := range out {
		out[i] = h.frames[(start+i)%len(h.frames)]
	}
	return out
}

func (h *history) len() int {
	return h.size
}
