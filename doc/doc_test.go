package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/protocol"
	"github.com/quaverhq/quaver/smf"
)

func testDoc(t *testing.T) (*Document, *Track) {
	t.Helper()
	d := New(480)
	trk := d.AddTrack("piano")
	return d, trk
}

func TestInsertNotePairsAndIndexes(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	on, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	assert.Equal(event.NoteOn, on.Kind)

	off := d.Event(on.Partner)
	assert.NotNil(off)
	assert.Equal(event.NoteOff, off.Kind)
	assert.Equal(on.ID, off.Partner)
	assert.Equal(480, off.Tick)

	assert.Equal(2, d.Channel(0).Len())
	assert.Empty(d.CheckPairing())
	assert.Equal(480, trk.EndTick())
	assert.True(d.Dirty())
}

func TestInsertNoteValidation(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	_, err := d.InsertNote(nil, 16, 60, 100, 0, 480, trk.ID())
	assert.Error(err)
	_, err = d.InsertNote(nil, 0, 60, 100, 480, 0, trk.ID())
	assert.Error(err)
	_, err = d.InsertNote(nil, 0, 60, 100, -1, 480, trk.ID())
	assert.Error(err)
}

func TestInsertEventRejectsUnpairedNote(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	err := d.InsertEvent(nil, &event.Event{Kind: event.NoteOn, Note: 60, Velocity: 90, Track: trk.ID()}, 0)
	assert.ErrorIs(err, ErrPairing)
}

func TestChannelRouting(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	tempo := &event.Event{Kind: event.TempoChange, MicrosPerQuarter: 250000, Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, tempo, 0))

	name := &event.Event{Kind: event.Text, TextKind: event.TextMarker, Text: "intro", Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, name, 0))

	cc := &event.Event{Kind: event.ControlChange, Channel: 5, Controller: 7, Value: 100, Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, cc, 0))

	assert.Equal(1, d.Channel(ChannelConductor).Len())
	assert.Equal(1, d.Channel(ChannelGlobal).Len())
	assert.Equal(1, d.Channel(5).Len())
}

func TestEventsBetweenMergesInOrder(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	_, err := d.InsertNote(nil, 1, 64, 80, 480, 960, trk.ID())
	assert.NoError(err)
	_, err = d.InsertNote(nil, 0, 60, 80, 0, 480, trk.ID())
	assert.NoError(err)
	cc := &event.Event{Kind: event.ControlChange, Channel: 0, Controller: 64, Value: 127, Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, cc, 480))

	all := d.EventsBetween(0, d.MaxTick()+1)
	assert.Len(all, 5)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(all[i-1].Tick, all[i].Tick)
	}
	// Same-tick events keep channel-number order: the channel 0 NoteOff and
	// pedal release come before the channel 1 NoteOn at tick 480.
	assert.Equal([]int{0, 480, 480, 480, 960},
		[]int{all[0].Tick, all[1].Tick, all[2].Tick, all[3].Tick, all[4].Tick})
	assert.Equal(uint8(0), all[1].Channel)
	assert.Equal(uint8(0), all[2].Channel)
	assert.Equal(uint8(1), all[3].Channel)

	// Half-open window: the tick 480 events are excluded by endTick 480.
	assert.Len(d.EventsBetween(0, 480), 1)
}

func TestExportLoadRoundTrip(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	assert.NoError(d.InsertEvent(nil, &event.Event{
		Kind: event.Text, TextKind: event.TextTrackName, Text: "piano", Track: trk.ID(),
	}, 0))
	assert.NoError(d.InsertEvent(nil, &event.Event{
		Kind: event.TempoChange, MicrosPerQuarter: 400000, Track: trk.ID(),
	}, 0))
	_, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	_, err = d.InsertNote(nil, 9, 36, 120, 240, 480, trk.ID())
	assert.NoError(err)

	data, err := d.Export()
	assert.NoError(err)

	d2, log, err := Load(data)
	assert.NoError(err)
	assert.Empty(log)
	assert.Equal(480, d2.Resolution())
	assert.Equal(1, d2.NumTracks())
	assert.Equal("piano", d2.Track(0).Name)
	assert.Equal(2, d2.Channel(0).Len())
	assert.Equal(2, d2.Channel(9).Len())
	assert.Equal(1, d2.Channel(ChannelConductor).Len())
	assert.Empty(d2.CheckPairing())
	assert.False(d2.Dirty())

	// An untouched reload serializes to the same bytes.
	data2, err := d2.Export()
	assert.NoError(err)
	assert.Equal(data, data2)
}

func TestExportRefusesOrphanedNotes(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	on, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	assert.True(d.RemoveEvent(nil, d.Event(on.Partner)))

	assert.NotEmpty(d.CheckPairing())
	_, err = d.Export()
	assert.ErrorIs(err, ErrPairing)
}

func TestLoadSynthesizesMissingNoteOff(t *testing.T) {
	assert := assert.New(t)
	f := &smf.File{Format: 0, Resolution: 480, Tracks: []smf.Track{{
		Events: []*event.Event{
			{Kind: event.NoteOn, Tick: 0, Channel: 0, Note: 60, Velocity: 100},
		},
		End: 960,
	}}}
	data, err := smf.Encode(f)
	assert.NoError(err)

	d, log, err := Load(data)
	assert.NoError(err)
	assert.Len(log, 1)
	assert.Contains(log[0], "synthesized")

	assert.Equal(2, d.Channel(0).Len())
	off := d.Channel(0).Events()[1]
	assert.Equal(event.NoteOff, off.Kind)
	assert.Equal(960, off.Tick)
	assert.Empty(d.CheckPairing())
}

func TestLoadDropsOrphanNoteOff(t *testing.T) {
	assert := assert.New(t)
	f := &smf.File{Format: 0, Resolution: 480, Tracks: []smf.Track{{
		Events: []*event.Event{
			{Kind: event.NoteOff, Tick: 480, Channel: 0, Note: 60},
		},
		End: 960,
	}}}
	data, err := smf.Encode(f)
	assert.NoError(err)

	d, log, err := Load(data)
	assert.NoError(err)
	assert.Len(log, 1)
	assert.Contains(log[0], "dropping")
	assert.True(d.Channel(0).IsEmpty())
}

func TestDeleteMeasuresIsOneUndoStep(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)
	prot := protocol.New()

	// 4/4 at 480 resolution: 1920 ticks per measure.
	first, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	doomedOn, err := d.InsertNote(nil, 0, 62, 100, 2000, 2400, trk.ID())
	assert.NoError(err)
	last, err := d.InsertNote(nil, 0, 64, 100, 4000, 4400, trk.ID())
	assert.NoError(err)

	assert.NoError(d.DeleteMeasures(prot, 1, 1))
	assert.Equal(1, prot.UndoDepth())

	assert.Equal(0, first.Tick)
	assert.Equal(4000-1920, last.Tick)
	assert.NotContains(d.Channel(0).Events(), doomedOn)
	assert.Equal(4, d.Channel(0).Len())
	assert.Empty(d.CheckPairing())

	assert.NoError(prot.Undo())
	assert.Equal(6, d.Channel(0).Len())
	assert.Equal(2000, doomedOn.Tick)
	assert.Equal(4000, last.Tick)
	assert.Contains(d.Channel(0).Events(), doomedOn)
	assert.Empty(d.CheckPairing())
}

func TestDeleteMeasuresDragsPartnerOutsideRegion(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)
	prot := protocol.New()

	// NoteOn in measure 1, NoteOff in measure 2: the whole pair goes.
	on, err := d.InsertNote(nil, 0, 60, 100, 2000, 4200, trk.ID())
	assert.NoError(err)

	assert.NoError(d.DeleteMeasures(prot, 1, 1))
	assert.True(d.Channel(0).IsEmpty())
	assert.Empty(d.CheckPairing())

	assert.NoError(prot.Undo())
	assert.Equal(2000, on.Tick)
	assert.Equal(2, d.Channel(0).Len())
}

func TestInsertMeasuresShiftsEverythingAfter(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)
	prot := protocol.New()

	before, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	after, err := d.InsertNote(nil, 0, 62, 100, 1920, 2400, trk.ID())
	assert.NoError(err)

	assert.NoError(d.InsertMeasures(prot, 1, 2))
	assert.Equal(1, prot.UndoDepth())
	assert.Equal(0, before.Tick)
	assert.Equal(1920+2*1920, after.Tick)

	assert.NoError(prot.Undo())
	assert.Equal(1920, after.Tick)
}

func TestTimeMapFollowsConductorEdits(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	assert.InDelta(500.0, d.MsOfTick(480), 1e-9)

	tempo := &event.Event{Kind: event.TempoChange, MicrosPerQuarter: 250000, Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, tempo, 0))
	assert.InDelta(250.0, d.MsOfTick(480), 1e-9)

	assert.True(d.RemoveEvent(nil, tempo))
	assert.InDelta(500.0, d.MsOfTick(480), 1e-9)
}

func TestSnapshotForReadIsDetached(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	on, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)

	snap := d.SnapshotForRead()
	on.Tick = 999
	trk.Name = "renamed"

	snapOn := snap.Channel(0).Events()[0]
	assert.Equal(0, snapOn.Tick)
	assert.Equal("piano", snap.Track(0).Name)

	// Partner links resolve inside the snapshot's own arena.
	snapOff := snap.Event(snapOn.Partner)
	assert.NotNil(snapOff)
	assert.Equal(event.NoteOff, snapOff.Kind)
	assert.Equal(snapOn.ID, snapOff.Partner)
	assert.NotSame(snapOn, on)
}

func TestMeasureSurvivesDegenerateSignature(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)

	// Any 4-byte payload decodes, so a zero numerator can arrive from a file.
	sig := &event.Event{Kind: event.TimeSignature, Num: 0, DenomPow: 2, Track: trk.ID()}
	assert.NoError(d.InsertEvent(nil, sig, 0))

	index, start, end := d.Measure(1920)
	assert.Equal(1, index)
	assert.Equal(1920, start)
	assert.Equal(3840, end)
}

func TestExportPreservesLoadedFormat(t *testing.T) {
	assert := assert.New(t)
	f := &smf.File{Format: 1, Resolution: 480, Tracks: []smf.Track{{
		Events: []*event.Event{
			{Kind: event.NoteOn, Tick: 0, Channel: 0, Note: 60, Velocity: 100},
			{Kind: event.NoteOff, Tick: 480, Channel: 0, Note: 60},
		},
		End: 480,
	}}}
	data, err := smf.Encode(f)
	assert.NoError(err)

	// A format-1 file with a single track keeps its header on re-save.
	d, _, err := Load(data)
	assert.NoError(err)
	out, err := d.Export()
	assert.NoError(err)
	assert.Equal(data, out)

	// Format 0 is promoted once a second track makes it invalid.
	f.Format = 0
	data, err = smf.Encode(f)
	assert.NoError(err)
	d, _, err = Load(data)
	assert.NoError(err)
	d.AddTrack("extra")
	out, err = d.Export()
	assert.NoError(err)
	parsed, _, err := smf.Decode(out)
	assert.NoError(err)
	assert.Equal(uint16(1), parsed.Format)
}

func TestRemoveTrackIsOneUndoStep(t *testing.T) {
	assert := assert.New(t)
	d := New(480)
	keep := d.AddTrack("keep")
	gone := d.AddTrack("gone")
	prot := protocol.New()

	_, err := d.InsertNote(nil, 0, 60, 100, 0, 480, keep.ID())
	assert.NoError(err)
	on, err := d.InsertNote(nil, 0, 62, 100, 0, 480, gone.ID())
	assert.NoError(err)

	assert.True(d.RemoveTrack(prot, 1))
	assert.Equal(1, prot.UndoDepth())
	assert.Equal(1, d.NumTracks())
	assert.Equal(2, d.Channel(0).Len())

	assert.NoError(prot.Undo())
	assert.Equal(2, d.NumTracks())
	assert.Same(gone, d.Track(1))
	assert.Equal(4, d.Channel(0).Len())
	assert.Contains(d.Channel(0).Events(), on)
	assert.Empty(d.CheckPairing())
}

func TestRemoveTrackDropsItsEvents(t *testing.T) {
	assert := assert.New(t)
	d := New(480)
	keep := d.AddTrack("keep")
	gone := d.AddTrack("gone")

	_, err := d.InsertNote(nil, 0, 60, 100, 0, 480, keep.ID())
	assert.NoError(err)
	_, err = d.InsertNote(nil, 0, 62, 100, 0, 480, gone.ID())
	assert.NoError(err)

	assert.True(d.RemoveTrack(nil, 1))
	assert.Equal(1, d.NumTracks())
	assert.Equal(2, d.Channel(0).Len())
	for _, ev := range d.Channel(0).Events() {
		assert.Equal(keep.ID(), ev.Track)
	}
}

func TestMaxTickTracksLastEvent(t *testing.T) {
	assert := assert.New(t)
	d, trk := testDoc(t)
	assert.Equal(0, d.MaxTick())

	_, err := d.InsertNote(nil, 0, 60, 100, 0, 480, trk.ID())
	assert.NoError(err)
	assert.Equal(480, d.MaxTick())

	_, err = d.InsertNote(nil, 3, 62, 100, 100, 9600, trk.ID())
	assert.NoError(err)
	assert.Equal(9600, d.MaxTick())
}
