package session

import "github.com/quaverhq/quaver/event"

// Selection is an ordered set of selected events. It participates in the
// undo protocol like every other entity, so selection changes made by a
// recorded operation come back with undo.
type Selection struct {
	events []*event.Event
	member map[event.ID]bool
}

func NewSelection() *Selection {
	return &Selection{member: make(map[event.ID]bool)}
}

func (s *Selection) Add(ev *event.Event) {
	if ev == nil || s.member[ev.ID] {
		return
	}
	s.member[ev.ID] = true
	s.events = append(s.events, ev)
}

func (s *Selection) Remove(ev *event.Event) {
	if ev == nil || !s.member[ev.ID] {
		return
	}
	delete(s.member, ev.ID)
	for i, e := range s.events {
		if e == ev {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
}

func (s *Selection) Clear() {
	s.events = nil
	s.member = make(map[event.ID]bool)
}

func (s *Selection) Contains(ev *event.Event) bool { return ev != nil && s.member[ev.ID] }
func (s *Selection) Len() int { return len(s.events) }

// Events returns the selected events in selection order.
func (s *Selection) Events() []*event.Event {
	out := make([]*event.Event, len(s.events))
	copy(out, s.events)
	return out
}

type selectionState struct {
	events []*event.Event
}

func (s *Selection) SnapshotState() any {
	st := selectionState{events: make([]*event.Event, len(s.events))}
	copy(st.events, s.events)
	return st
}

func (s *Selection) RestoreState(state any) {
	st := state.(selectionState)
	s.events = make([]*event.Event, len(st.events))
	copy(s.events, st.events)
	s.member = make(map[event.ID]bool, len(st.events))
	for _, ev := range st.events {
		s.member[ev.ID] = true
	}
}
