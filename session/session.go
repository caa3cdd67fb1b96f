// Package session ties one document to one selection and one undo protocol,
// and implements the recorded edit operations on top of the document
// primitives. The active selection and the active protocol are carried here
// explicitly rather than as package globals.
package session

import (
	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/protocol"
	"github.com/quaverhq/quaver/util"
)

// Session is the edit context threaded through every operation.
type Session struct {
	Doc  *doc.Document
	Prot *protocol.Protocol
	Sel  *Selection

	autosave *autosaver
}

func New(d *doc.Document) *Session {
	return &Session{
		Doc:  d,
		Prot: protocol.New(),
		Sel:  NewSelection(),
	}
}

func (s *Session) Undo() error { return s.Prot.Undo() }
func (s *Session) Redo() error { return s.Prot.Redo() }

// InsertNote records a linked note pair as a single step.
func (s *Session) InsertNote(channel, note, velocity uint8, startTick, endTick int, track event.TrackID) (*event.Event, error) {
	s.Prot.StartNewAction("Insert note")
	defer s.Prot.EndAction()
	return s.Doc.InsertNote(s.Prot, channel, note, velocity, startTick, endTick, track)
}

// InsertEvent records a single non-note event insertion.
func (s *Session) InsertEvent(ev *event.Event, tick int) error {
	s.Prot.StartNewAction("Insert event")
	defer s.Prot.EndAction()
	return s.Doc.InsertEvent(s.Prot, ev, tick)
}

// DeleteEvent removes one event as a recorded step, dragging a note partner
// along so no orphan survives.
func (s *Session) DeleteEvent(ev *event.Event) error {
	s.Prot.StartNewAction("Delete event")
	defer s.Prot.EndAction()
	if p := s.Doc.Event(ev.Partner); p != nil {
		if !s.Doc.RemoveEvent(s.Prot, p) {
			return errors.Errorf("session: %v not present in its channel", p)
		}
	}
	if !s.Doc.RemoveEvent(s.Prot, ev) {
		return errors.Errorf("session: %v not present in its channel", ev)
	}
	oldSel := s.Sel.SnapshotState()
	s.Sel.Remove(ev)
	if p := s.Doc.Event(ev.Partner); p != nil {
		s.Sel.Remove(p)
	}
	s.Prot.Push(s.Sel, oldSel, s.Sel.SnapshotState())
	return nil
}

// DeleteSelection removes every selected event, dragging note partners
// along so no orphaned NoteOn or NoteOff survives. One step; the selection
// empties as part of it.
func (s *Session) DeleteSelection() error {
	if s.Sel.Len() == 0 {
		return nil
	}
	s.Prot.StartNewAction("Delete selection")
	defer s.Prot.EndAction()
	victims := s.Sel.Events()
	seen := make(map[event.ID]bool)
	var all []*event.Event
	for _, ev := range victims {
		if !seen[ev.ID] {
			seen[ev.ID] = true
			all = append(all, ev)
		}
		if ev.Partner != 0 {
			if p := s.Doc.Event(ev.Partner); p != nil && !seen[p.ID] {
				seen[p.ID] = true
				all = append(all, p)
			}
		}
	}
	for _, ev := range all {
		if !s.Doc.RemoveEvent(s.Prot, ev) {
			return errors.Errorf("session: selected event %v not present in its channel", ev)
		}
	}
	oldSel := s.Sel.SnapshotState()
	s.Sel.Clear()
	s.Prot.Push(s.Sel, oldSel, s.Sel.SnapshotState())
	return nil
}

// MoveSelection shifts every selected event (and note partners) by
// deltaTicks as one step. Events are pulled out of their channels and
// reinserted so the indices stay ordered.
func (s *Session) MoveSelection(deltaTicks int) error {
	if s.Sel.Len() == 0 {
		return nil
	}
	s.Prot.StartNewAction("Move selection")
	defer s.Prot.EndAction()
	moved := make(map[event.ID]bool)
	var all []*event.Event
	for _, ev := range s.Sel.Events() {
		if !moved[ev.ID] {
			moved[ev.ID] = true
			all = append(all, ev)
		}
		if p := s.Doc.Event(ev.Partner); p != nil && !moved[p.ID] {
			moved[p.ID] = true
			all = append(all, p)
		}
	}
	for _, ev := range all {
		if ev.Tick+deltaTicks < 0 {
			return errors.Errorf("session: move would push %v before tick 0", ev)
		}
	}
	for _, ev := range all {
		if !s.Doc.RemoveEvent(s.Prot, ev) {
			return errors.Errorf("session: selected event %v not present in its channel", ev)
		}
		old := ev.SnapshotState()
		ev.Tick += deltaTicks
		s.Prot.Push(ev, old, ev.SnapshotState())
		if err := s.Doc.InsertEvent(s.Prot, ev, ev.Tick); err != nil {
			return err
		}
	}
	return nil
}

// ResizeNote moves a note's NoteOff to endTick, keeping the pairing
// invariant endTick >= start.
func (s *Session) ResizeNote(on *event.Event, endTick int) error {
	if on.Kind != event.NoteOn {
		return errors.Errorf("session: %v is not a NoteOn", on)
	}
	off := s.Doc.Event(on.Partner)
	if off == nil {
		return errors.Wrapf(doc.ErrPairing, "resizing %v", on)
	}
	if endTick < on.Tick {
		return errors.Errorf("session: note end %d before start %d", endTick, on.Tick)
	}
	s.Prot.StartNewAction("Resize note")
	defer s.Prot.EndAction()
	if !s.Doc.RemoveEvent(s.Prot, off) {
		return errors.Errorf("session: %v not present in its channel", off)
	}
	old := off.SnapshotState()
	off.Tick = endTick
	s.Prot.Push(off, old, off.SnapshotState())
	return s.Doc.InsertEvent(s.Prot, off, endTick)
}

// GlueNotes merges note b into note a: a's NoteOff extends to the later of
// the two note ends and b's pair leaves the index. The notes must agree on
// pitch, channel and track.
func (s *Session) GlueNotes(a, b *event.Event) error {
	if a.Kind != event.NoteOn || b.Kind != event.NoteOn {
		return errors.New("session: glue needs two NoteOns")
	}
	if a.Note != b.Note || a.Channel != b.Channel || a.Track != b.Track {
		return errors.New("session: glue needs matching pitch, channel and track")
	}
	offA := s.Doc.Event(a.Partner)
	offB := s.Doc.Event(b.Partner)
	if offA == nil || offB == nil {
		return errors.Wrap(doc.ErrPairing, "gluing unpaired notes")
	}
	s.Prot.StartNewAction("Glue notes")
	defer s.Prot.EndAction()
	newEnd := util.Max(offA.Tick, offB.Tick)
	if !s.Doc.RemoveEvent(s.Prot, b) || !s.Doc.RemoveEvent(s.Prot, offB) {
		return errors.Errorf("session: glued note %v not present in its channel", b)
	}
	oldSel := s.Sel.SnapshotState()
	s.Sel.Remove(b)
	s.Sel.Remove(offB)
	s.Prot.Push(s.Sel, oldSel, s.Sel.SnapshotState())
	if newEnd != offA.Tick {
		if !s.Doc.RemoveEvent(s.Prot, offA) {
			return errors.Errorf("session: %v not present in its channel", offA)
		}
		old := offA.SnapshotState()
		offA.Tick = newEnd
		s.Prot.Push(offA, old, offA.SnapshotState())
		return s.Doc.InsertEvent(s.Prot, offA, newEnd)
	}
	return nil
}

// SplitNote cuts a note in two at atTick: the original pair shortens to
// [start, atTick) and a new pair covers [atTick, end).
func (s *Session) SplitNote(on *event.Event, atTick int) (*event.Event, error) {
	if on.Kind != event.NoteOn {
		return nil, errors.Errorf("session: %v is not a NoteOn", on)
	}
	off := s.Doc.Event(on.Partner)
	if off == nil {
		return nil, errors.Wrapf(doc.ErrPairing, "splitting %v", on)
	}
	if atTick <= on.Tick || atTick >= off.Tick {
		return nil, errors.Errorf("session: split tick %d outside (%d, %d)", atTick, on.Tick, off.Tick)
	}
	s.Prot.StartNewAction("Split note")
	defer s.Prot.EndAction()
	end := off.Tick
	if !s.Doc.RemoveEvent(s.Prot, off) {
		return nil, errors.Errorf("session: %v not present in its channel", off)
	}
	old := off.SnapshotState()
	off.Tick = atTick
	s.Prot.Push(off, old, off.SnapshotState())
	if err := s.Doc.InsertEvent(s.Prot, off, atTick); err != nil {
		return nil, err
	}
	return s.Doc.InsertNote(s.Prot, on.Channel, on.Note, on.Velocity, atTick, end, on.Track)
}
