package desk

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultToastVisible = 3 * time.Second
	DefaultToastFade    = 300 * time.Millisecond
)

type ToastKind int

const (
	ToastSuccess ToastKind = iota
	ToastError
)

func (k ToastKind) String() string {
	switch k {
	case ToastSuccess:
		return "success"
	case ToastError:
		return "error"
	default:
		return "unknown"
	}
}

type ToastPhase int

const (
	ToastVisible ToastPhase = iota
	ToastFading
)

type Toast struct {
	ID        string
	Kind      ToastKind
	Text      string
	Phase     ToastPhase
	CreatedAt time.Time
}

// Notifier keeps the stack of transient toasts. Each toast stays visible,
// then fades, then disappears; every phase change republishes the whole
// stack in insertion order.
type Notifier struct {
	mu      sync.Mutex
	toasts  []Toast
	timers  map[string]*time.Timer
	visible time.Duration
	fade    time.Duration
	publish func([]Toast)
	closed  bool
}

func NewNotifier(visible, fade time.Duration, publish func([]Toast)) *Notifier {
	if visible <= 0 {
		visible = DefaultToastVisible
	}
	if fade < 0 {
		fade = DefaultToastFade
	}
	if publish == nil {
		publish = func([]Toast) {}
	}
	return &Notifier{
		timers:  map[string]*time.Timer{},
		visible: visible,
		fade:    fade,
		publish: publish,
	}
}

func (n *Notifier) Show(kind ToastKind, text string) Toast {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := Toast{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Phase:     ToastVisible,
		CreatedAt: time.Now(),
	}
	if n.closed {
		return t
	}
	n.toasts = append(n.toasts, t)
	n.timers[t.ID] = time.AfterFunc(n.visible, func() { n.startFade(t.ID) })
	n.publishLocked()
	return t
}

func (n *Notifier) Toasts() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Toast(nil), n.toasts...)
}

// Close stops pending timers; toasts already shown stay where they are.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
}

func (n *Notifier) startFade(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for i := range n.toasts {
		if n.toasts[i].ID == id {
			n.toasts[i].Phase = ToastFading
			n.timers[id] = time.AfterFunc(n.fade, func() { n.remove(id) })
			n.publishLocked()
			return
		}
	}
}

func (n *Notifier) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.timers, id)
	if n.closed {
		return
	}
	for i := range n.toasts {
		if n.toasts[i].ID == id {
			n.toasts = append(n.toasts[:i], n.toasts[i+1:]...)
			n.publishLocked()
			return
		}
	}
}

func (n *Notifier) publishLocked() {
	n.publish(append([]Toast(nil), n.toasts...))
}
