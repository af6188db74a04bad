package registry

import (
	"sync"

	"github.com/TaceoLabs/oprf-key-registry/keygen"
	"github.com/ethereum/go-ethereum/common"
)

// Administrative event kinds. Protocol event kinds are defined in keygen.
const (
	EventAdminAdded      keygen.EventKind = "admin_added"
	EventAdminRevoked    keygen.EventKind = "admin_revoked"
	EventPeersRegistered keygen.EventKind = "peers_registered"
)

// Event is a notification in the registry's ordered log. Seq starts at 1 and
// increases by one per event.
type Event struct {
	Seq uint64 `json:"seq"`
	keygen.Event
	// Address is set on admin events.
	Address *common.Address `json:"address,omitempty"`
}

const defaultEventRetention = 4096

// eventLog retains the most recent events and fans them out to
// subscribers. A subscriber that falls behind loses events; it can catch up
// with since-queries as long as the events are still retained.
type eventLog struct {
	mu      sync.Mutex
	seq     uint64
	events  []Event
	retain  int
	subs    map[int]chan Event
	nextSub int
	dropped func()
}

func newEventLog(retain int, dropped func()) *eventLog {
	if retain <= 0 {
		retain = defaultEventRetention
	}
	return &eventLog{retain: retain, subs: make(map[int]chan Event), dropped: dropped}
}

func (l *eventLog) publish(evs ...Event) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, 0, len(evs))
	for _, ev := range evs {
		l.seq++
		ev.Seq = l.seq
		l.events = append(l.events, ev)
		out = append(out, ev)
		for _, ch := range l.subs {
			select {
			case ch <- ev:
			default:
				l.dropped()
			}
		}
	}
	if over := len(l.events) - l.retain; over > 0 {
		l.events = append([]Event(nil), l.events[over:]...)
	}
	return out
}

func (l *eventLog) since(seq uint64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Event, buffer)
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
