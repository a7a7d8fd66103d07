package desk

import "sync"

type resource string

const (
	resourceChats  resource = "chats"
	resourceStats  resource = "stats"
	resourceThread resource = "thread"
)

// inflight hands out per-resource tokens. Only the newest token of a
// resource may apply its result; older completions are dropped.
type inflight struct {
	mu     sync.Mutex
	latest map[resource]uint64
}

func newInflight() *inflight {
	return &inflight{latest: map[resource]uint64{}}
}

func (f *inflight) begin(r resource) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[r]++
	return f.latest[r]
}

func (f *inflight) current(r resource, token uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[r] == token
}
