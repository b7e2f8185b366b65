package progress

import (
	"fmt"
	"sync"
)

// Kind distinguishes failed-attempt notices from batch counts.
type Kind int

const (
	KindError Kind = iota + 1
	KindCounts
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindCounts:
		return "counts"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Stage names the fetch that failed.
type Stage string

const (
	StageBlock Stage = "block"
	StageTxs   Stage = "txs"
)

// Event is one progress notification. Page is 0 when it does not apply.
type Event struct {
	Kind    Kind
	Stage   Stage
	Height  uint64
	Page    int
	Headers int
	Txs     int
}

// Error builds a failed-attempt event.
func Error(stage Stage, height uint64, page int) Event {
	return Event{Kind: KindError, Stage: stage, Height: height, Page: page}
}

// Counts builds a batch counts event.
func Counts(headers, txs int) Event {
	return Event{Kind: KindCounts, Headers: headers, Txs: txs}
}

// Sink receives progress events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

type nop struct{}

func (nop) Emit(Event) {}

// Nop discards every event.
var Nop Sink = nop{}

// ChanSink forwards events to a caller-owned channel. Emit blocks while the
// channel is full; the consumer paces the producers.
type ChanSink struct {
	ch chan<- Event
}

func NewChanSink(ch chan<- Event) ChanSink {
	return ChanSink{ch: ch}
}

func (s ChanSink) Emit(e Event) {
	s.ch <- e
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded events of one kind.
func (r *Recorder) Filter(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
