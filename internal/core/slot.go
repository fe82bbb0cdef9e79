package core

// FrameSlot is a single-slot mailbox with overwrite-on-full semantics.
// At most one frame is ever pending; a newer Offer evicts it.
type FrameSlot struct {
	ch chan Message
}

func NewFrameSlot() *FrameSlot {
	return &FrameSlot{ch: make(chan Message, 1)}
}

// Offer stores msg, dropping any undelivered frame. It never blocks and
// reports whether a pending frame was evicted.
func (s *FrameSlot) Offer(msg Message) (replaced bool) {
	for {
		select {
		case s.ch <- msg:
			return replaced
		default:
		}
		select {
		case <-s.ch:
			replaced = true
		default:
		}
	}
}

// C is drained by the connection's writer.
func (s *FrameSlot) C() <-chan Message { return s.ch }

// Drain discards the pending frame, if any.
func (s *FrameSlot) Drain() {
	select {
	case <-s.ch:
	default:
	}
}
