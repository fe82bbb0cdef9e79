package core

// Message is one encoded outbound payload.
type Message []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: a full queue is reported as an error.
type SignalConnection interface {
	TrySend(Message) error
	Close()
}
