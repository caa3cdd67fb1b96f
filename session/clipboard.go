package session

import (
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/event"
)

// The clipboard reuses the SMF codec as its interchange format: a copied
// selection becomes a one-track sequence serialized to base64 text, and
// paste re-parses it. Pasting across documents with different resolutions
// scales ticks by targetResolution / sourceResolution.

// Copy serializes the selected events (note partners included) into a
// clipboard string. Ticks are rebased so the earliest copied event sits at
// tick zero.
func (s *Session) Copy() (string, error) {
	if s.Sel.Len() == 0 {
		return "", errors.New("session: nothing selected")
	}
	picked := make(map[event.ID]bool)
	var events []*event.Event
	base := -1
	for _, ev := range s.Sel.Events() {
		for _, e := range []*event.Event{ev, s.Doc.Event(ev.Partner)} {
			if e == nil || picked[e.ID] {
				continue
			}
			picked[e.ID] = true
			events = append(events, e)
			if base < 0 || e.Tick < base {
				base = e.Tick
			}
		}
	}

	buffer := doc.New(s.Doc.Resolution())
	t := buffer.AddTrack("clipboard")
	for _, ev := range events {
		switch ev.Kind {
		case event.NoteOn:
			off := s.Doc.Event(ev.Partner)
			if off == nil {
				return "", errors.Wrapf(doc.ErrPairing, "copying %v", ev)
			}
			if _, err := buffer.InsertNote(nil, ev.Channel, ev.Note, ev.Velocity,
				ev.Tick-base, off.Tick-base, t.ID()); err != nil {
				return "", err
			}
		case event.NoteOff:
			// Carried by its NoteOn.
		default:
			c := ev.Clone()
			c.Track = t.ID()
			if err := buffer.InsertEvent(nil, c, ev.Tick-base); err != nil {
				return "", err
			}
		}
	}
	data, err := buffer.Export()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Paste re-parses a clipboard string and inserts its events at atTick on
// the given track, as one recorded step. The pasted events become the new
// selection.
func (s *Session) Paste(clip string, atTick int, track event.TrackID) error {
	data, err := base64.StdEncoding.DecodeString(clip)
	if err != nil {
		return errors.Wrap(err, "session: clipboard is not base64")
	}
	buffer, _, err := doc.Load(data)
	if err != nil {
		return errors.Wrap(err, "session: clipboard does not parse")
	}
	scaleNum := s.Doc.Resolution()
	scaleDen := buffer.Resolution()
	scale := func(tick int) int {
		return atTick + (tick*scaleNum+scaleDen/2)/scaleDen
	}

	s.Prot.StartNewAction("Paste")
	defer s.Prot.EndAction()
	oldSel := s.Sel.SnapshotState()
	s.Sel.Clear()
	for i := 0; i < doc.NumChannels; i++ {
		for _, ev := range buffer.Channel(i).Events() {
			switch ev.Kind {
			case event.NoteOn:
				off := buffer.Event(ev.Partner)
				if off == nil {
					return errors.Wrapf(doc.ErrPairing, "pasting %v", ev)
				}
				on, err := s.Doc.InsertNote(s.Prot, ev.Channel, ev.Note, ev.Velocity,
					scale(ev.Tick), scale(off.Tick), track)
				if err != nil {
					return err
				}
				s.Sel.Add(on)
			case event.NoteOff:
				// Carried by its NoteOn.
			default:
				c := ev.Clone()
				c.Track = track
				if err := s.Doc.InsertEvent(s.Prot, c, scale(ev.Tick)); err != nil {
					return err
				}
				s.Sel.Add(c)
			}
		}
	}
	s.Prot.Push(s.Sel, oldSel, s.Sel.SnapshotState())
	return nil
}
