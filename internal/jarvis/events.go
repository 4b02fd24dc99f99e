package jarvis

import (
	"time"

	"jarvis/internal/lang"
)

type EventKind string

const (
	EventWakeWord EventKind = "wake_word"
	EventCommand  EventKind = "command"
	EventResponse EventKind = "response"
	EventError    EventKind = "error"
	EventStatus   EventKind = "status"
)

type Event struct {
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Language  lang.Code `json:"language,omitempty"`
	CommandID string    `json:"command_id,omitempty"`
	Status    State     `json:"status,omitempty"`
	Err       string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

const subBuffer = 32

// Subscribe returns a channel receiving every event from now on and a
// function that cancels the subscription. Events are dropped for
// subscribers that fall behind.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subBuffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.opt.Now()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) emitStatus() {
	s.mu.Lock()
	st, l := s.stateLocked(), s.lang
	s.mu.Unlock()

	s.emit(Event{Kind: EventStatus, Status: st, Language: l})
}
