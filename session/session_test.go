package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/event"
)

func newTestSession(t *testing.T) (*Session, *doc.Track) {
	t.Helper()
	d := doc.New(480)
	trk := d.AddTrack("piano")
	return New(d), trk
}

func TestInsertNoteUndoLeavesChannelEmpty(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	assert.Equal(2, s.Doc.Channel(0).Len())
	assert.Equal(1, s.Prot.UndoDepth())

	assert.NoError(s.Undo())
	assert.True(s.Doc.Channel(0).IsEmpty())

	assert.NoError(s.Redo())
	assert.Equal(2, s.Doc.Channel(0).Len())
	assert.Contains(s.Doc.Channel(0).Events(), on)
}

func TestDeleteEventRemovesPair(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	s.Sel.Add(on)

	assert.NoError(s.DeleteEvent(on))
	assert.True(s.Doc.Channel(0).IsEmpty())
	assert.Equal(0, s.Sel.Len())

	assert.NoError(s.Undo())
	assert.Equal(2, s.Doc.Channel(0).Len())
	assert.True(s.Sel.Contains(on))
}

func TestDeleteSelectionDragsPartners(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on1, err := s.InsertNote(0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	on2, err := s.InsertNote(0, 62, 100, 480, 960, trk.ID())
	assert.NoError(err)

	// Select only the NoteOns; the NoteOffs must go with them.
	s.Sel.Add(on1)
	s.Sel.Add(on2)
	assert.NoError(s.DeleteSelection())

	assert.True(s.Doc.Channel(0).IsEmpty())
	assert.Equal(0, s.Sel.Len())
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(4, s.Doc.Channel(0).Len())
	assert.Equal(2, s.Sel.Len())
	assert.True(s.Sel.Contains(on1))
}

func TestMoveSelection(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(0, 60, 100, 480, 960, trk.ID())
	assert.NoError(err)
	off := s.Doc.Event(on.Partner)

	s.Sel.Add(on)
	assert.NoError(s.MoveSelection(240))
	assert.Equal(720, on.Tick)
	assert.Equal(1200, off.Tick)
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(480, on.Tick)
	assert.Equal(960, off.Tick)

	assert.Error(s.MoveSelection(-481))
}

func TestResizeNote(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	off := s.Doc.Event(on.Partner)

	assert.NoError(s.ResizeNote(on, 960))
	assert.Equal(960, off.Tick)
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(480, off.Tick)

	// A note may collapse to zero length but never end before it starts.
	assert.NoError(s.ResizeNote(on, 0))
	assert.Error(s.ResizeNote(on, -1))
	assert.Error(s.ResizeNote(off, 480))
}

func TestGlueNotes(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	a, err := s.InsertNote(3, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	b, err := s.InsertNote(3, 60, 90, 240, 960, trk.ID())
	assert.NoError(err)
	s.Sel.Add(b)

	assert.NoError(s.GlueNotes(a, b))
	assert.Equal(2, s.Doc.Channel(3).Len())
	offA := s.Doc.Event(a.Partner)
	assert.Equal(960, offA.Tick)
	assert.False(s.Sel.Contains(b))
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(4, s.Doc.Channel(3).Len())
	assert.Equal(480, offA.Tick)
	assert.True(s.Sel.Contains(b))

	// Earlier-ending b: a's off already covers it, only b's pair goes.
	assert.NoError(s.Redo())

	other, err := s.InsertNote(4, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	assert.Error(s.GlueNotes(a, other))
}

func TestSplitNote(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(0, 60, 100, 0, 960, trk.ID())
	assert.NoError(err)
	off := s.Doc.Event(on.Partner)

	second, err := s.SplitNote(on, 480)
	assert.NoError(err)
	assert.Equal(480, off.Tick)
	assert.Equal(480, second.Tick)
	assert.Equal(960, s.Doc.Event(second.Partner).Tick)
	assert.Equal(uint8(100), second.Velocity)
	assert.Equal(4, s.Doc.Channel(0).Len())
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(2, s.Doc.Channel(0).Len())
	assert.Equal(960, off.Tick)

	_, err = s.SplitNote(on, 0)
	assert.Error(err)
	_, err = s.SplitNote(on, 960)
	assert.Error(err)
}

func TestCopyPaste(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)

	on, err := s.InsertNote(2, 60, 100, 480, 960, trk.ID())
	assert.NoError(err)
	s.Sel.Add(on)

	clip, err := s.Copy()
	assert.NoError(err)
	assert.NotEmpty(clip)

	undoBefore := s.Prot.UndoDepth()
	assert.NoError(s.Paste(clip, 1920, trk.ID()))
	assert.Equal(undoBefore+1, s.Prot.UndoDepth())

	// Ticks rebase to the paste point: the copied note started at the
	// earliest copied tick.
	assert.Equal(4, s.Doc.Channel(2).Len())
	assert.Equal(1, s.Sel.Len())
	pasted := s.Sel.Events()[0]
	assert.Equal(event.NoteOn, pasted.Kind)
	assert.Equal(1920, pasted.Tick)
	assert.Equal(2400, s.Doc.Event(pasted.Partner).Tick)
	assert.Empty(s.Doc.CheckPairing())

	assert.NoError(s.Undo())
	assert.Equal(2, s.Doc.Channel(2).Len())
}

func TestPasteScalesAcrossResolutions(t *testing.T) {
	assert := assert.New(t)
	src, srcTrk := newTestSession(t)
	on, err := src.InsertNote(0, 60, 100, 480, 960, srcTrk.ID())
	assert.NoError(err)
	src.Sel.Add(on)
	clip, err := src.Copy()
	assert.NoError(err)

	d := doc.New(960)
	trk := d.AddTrack("target")
	dst := New(d)
	assert.NoError(dst.Paste(clip, 0, trk.ID()))

	events := dst.Doc.Channel(0).Events()
	assert.Len(events, 2)
	assert.Equal(0, events[0].Tick)
	assert.Equal(960, events[1].Tick) // a quarter note in the new resolution
}

func TestCopyNothingSelected(t *testing.T) {
	assert := assert.New(t)
	s, _ := newTestSession(t)
	_, err := s.Copy()
	assert.Error(err)
}

func TestPasteRejectsGarbage(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)
	assert.Error(s.Paste("not base64!!", 0, trk.ID()))
	assert.Error(s.Paste("AAAA", 0, trk.ID()))
}

func TestAutosaveWritesAfterQuietPeriod(t *testing.T) {
	assert := assert.New(t)
	s, trk := newTestSession(t)
	path := filepath.Join(t.TempDir(), "song.mid")
	assert.NoError(s.Doc.Save(path))

	s.EnableAutosave(20 * time.Millisecond)
	_, err := s.InsertNote(0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)

	assert.Eventually(func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		d, _, err := doc.Load(data)
		return err == nil && d.Channel(0).Len() == 2
	}, 2*time.Second, 20*time.Millisecond)
}
