package notification

import (
	"context"
	"sync"
)

// Recorder keeps sent messages in memory. Useful for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from Send and nothing is recorded.
	Err error
}

func (r *Recorder) Send(_ context.Context, message Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, message)
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
