// Package doc holds the document aggregate: the 18 channel indices, the
// track list, the event arena, the cached tempo map, and load/save
// orchestration. All mutation runs on one logical thread; concurrent readers
// get SnapshotForRead copies instead of the live containers.
package doc

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/protocol"
	"github.com/quaverhq/quaver/timing"
)

// ErrPairing is the orphaned-note defect: a NoteOn or NoteOff whose partner
// is missing from the indices. Save refuses to serialize it without repair.
var ErrPairing = errors.New("doc: orphaned note pairing")

const DefaultResolution = 480

// Document owns every entity: channels, tracks, and the event arena that
// makes event references checkable ids instead of raw pointers.
type Document struct {
	resolution int
	// format is the SMF header format this document was loaded with, or -1
	// for a fresh document, which serializes as 0 or 1 by track count.
	format    int
	channels  [NumChannels]*Channel
	tracks    []*Track
	arena     []*event.Event
	nextTrack event.TrackID

	path  string
	dirty bool

	cursorTick int
	pauseTick  int

	tm      *timing.Map
	maxTick int
	cached  bool
}

// New creates an empty document. A zero resolution falls back to the 480
// ticks-per-quarter default.
func New(resolution int) *Document {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	d := &Document{resolution: resolution, format: -1}
	for i := range d.channels {
		d.channels[i] = newChannel(d, i)
	}
	return d
}

func (d *Document) Resolution() int { return d.resolution }

func (d *Document) Channel(i int) *Channel {
	if i < 0 || i >= NumChannels {
		return nil
	}
	return d.channels[i]
}

func (d *Document) Path() string { return d.path }
func (d *Document) Dirty() bool { return d.dirty }
func (d *Document) CursorTick() int { return d.cursorTick }
func (d *Document) SetCursorTick(t int) { d.cursorTick = t }
func (d *Document) PauseTick() int { return d.pauseTick }
func (d *Document) SetPauseTick(t int) { d.pauseTick = t }

// noteMutation is called by channels on every index change: it marks the
// document dirty and drops caches derived from the event graph.
func (d *Document) noteMutation(channelNum int) {
	d.dirty = true
	d.cached = false
	if channelNum == ChannelConductor {
		d.tm = nil
	}
}

// register assigns an arena id. Ids are never reused: an undone deletion can
// bring an event back and its id must still resolve.
func (d *Document) register(ev *event.Event) {
	if ev.ID != 0 {
		return
	}
	d.arena = append(d.arena, ev)
	ev.ID = event.ID(len(d.arena))
}

// Event resolves an arena id; nil for the zero id or an id from another
// document generation.
func (d *Document) Event(id event.ID) *event.Event {
	if id <= 0 || int(id) > len(d.arena) {
		return nil
	}
	return d.arena[id-1]
}

// Tracks.

func (d *Document) NumTracks() int { return len(d.tracks) }
func (d *Document) Tracks() []*Track { return d.tracks }

func (d *Document) Track(i int) *Track {
	if i < 0 || i >= len(d.tracks) {
		return nil
	}
	return d.tracks[i]
}

func (d *Document) TrackByID(id event.TrackID) *Track {
	for _, t := range d.tracks {
		if t.id == id {
			return t
		}
	}
	return nil
}

// AddTrack appends a named track and returns it.
func (d *Document) AddTrack(name string) *Track {
	t := &Track{doc: d, id: d.nextTrack, Name: name, Visible: true}
	d.nextTrack++
	d.tracks = append(d.tracks, t)
	d.dirty = true
	return t
}

// RemoveTrack removes the track at index together with every event that
// references it. With a protocol it records the whole removal as one step,
// opening the step itself when no action is in progress.
func (d *Document) RemoveTrack(prot *protocol.Protocol, index int) bool {
	t := d.Track(index)
	if t == nil {
		return false
	}
	if prot != nil {
		prot.StartNewAction("Remove track")
		defer prot.EndAction()
	}
	if prot != nil {
		old := d.SnapshotState()
		d.tracks = append(d.tracks[:index], d.tracks[index+1:]...)
		prot.Push(d, old, d.SnapshotState())
	} else {
		d.tracks = append(d.tracks[:index], d.tracks[index+1:]...)
	}
	for _, c := range d.channels {
		var keep, drop []*event.Event
		for _, ev := range c.events {
			if ev.Track == t.id {
				drop = append(drop, ev)
			} else {
				keep = append(keep, ev)
			}
		}
		if len(drop) == 0 {
			continue
		}
		if prot != nil {
			old := c.SnapshotState()
			c.events = keep
			c.doc.noteMutation(c.num)
			prot.Push(c, old, c.SnapshotState())
		} else {
			c.events = keep
			c.doc.noteMutation(c.num)
		}
	}
	d.dirty = true
	return true
}

// documentState snapshots the track list, so structural track edits undo.
type documentState struct {
	tracks    []*Track
	nextTrack event.TrackID
}

func (d *Document) SnapshotState() any {
	s := documentState{tracks: make([]*Track, len(d.tracks)), nextTrack: d.nextTrack}
	copy(s.tracks, d.tracks)
	return s
}

func (d *Document) RestoreState(state any) {
	s := state.(documentState)
	d.tracks = make([]*Track, len(s.tracks))
	copy(d.tracks, s.tracks)
	d.nextTrack = s.nextTrack
	d.dirty = true
}

// Timing.

// TimeMap rebuilds the tempo/time-signature view from the conductor channel
// on demand; conductor mutations drop the cache.
func (d *Document) TimeMap() *timing.Map {
	if d.tm != nil {
		return d.tm
	}
	var tempos []timing.TempoChange
	var sigs []timing.TimeSignature
	for _, ev := range d.channels[ChannelConductor].events {
		switch ev.Kind {
		case event.TempoChange:
			tempos = append(tempos, timing.TempoChange{Tick: ev.Tick, MicrosPerQuarter: ev.MicrosPerQuarter})
		case event.TimeSignature:
			sigs = append(sigs, timing.TimeSignature{Tick: ev.Tick, Num: ev.Num, DenomPow: ev.DenomPow})
		}
	}
	d.tm = timing.NewMap(d.resolution, tempos, sigs)
	return d.tm
}

func (d *Document) MsOfTick(tick int) float64 { return d.TimeMap().MsOfTick(tick) }
func (d *Document) TickOfMs(ms float64) int { return d.TimeMap().TickOfMs(ms) }

func (d *Document) Measure(tick int) (index, startTick, endTick int) {
	return d.TimeMap().Measure(tick)
}

// MaxTick is the last occupied tick of the document. NoteOffs are indexed
// events of their own, so the plain maximum already covers note durations.
func (d *Document) MaxTick() int {
	if d.cached {
		return d.maxTick
	}
	max := 0
	for _, c := range d.channels {
		if n := len(c.events); n > 0 && c.events[n-1].Tick > max {
			max = c.events[n-1].Tick
		}
	}
	d.maxTick = max
	d.cached = true
	return max
}

// EventsBetween merges all channels' events with startTick <= tick <
// endTick into one ascending-tick slice. Same-tick events keep channel-number
// order, and insertion order within a channel.
func (d *Document) EventsBetween(startTick, endTick int) []*event.Event {
	var out []*event.Event
	for _, c := range d.channels {
		out = append(out, c.EventsBetween(startTick, endTick)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out
}

// TicksOfRange converts a millisecond window to the tick window playback
// collaborators feed into EventsBetween.
func (d *Document) TicksOfRange(startMs, endMs float64) (startTick, endTick int) {
	tm := d.TimeMap()
	return tm.TickOfMs(startMs), tm.TickOfMs(endMs)
}

// channelFor routes an event to its authoritative index.
func (d *Document) channelFor(ev *event.Event) *Channel {
	switch {
	case ev.Kind.ChannelVoice():
		if ev.Channel < 16 {
			return d.channels[ev.Channel]
		}
		return d.channels[ChannelGlobal]
	case ev.Kind == event.TempoChange || ev.Kind == event.TimeSignature:
		return d.channels[ChannelConductor]
	default:
		return d.channels[ChannelGlobal]
	}
}

// InsertEvent places ev at tick in its channel index. When prot is
// recording, the whole channel index is snapshotted around the insert:
// insertion changes index structure, not one event's fields, so undo must
// restore the channel. A NoteOn or NoteOff without a realized partner is
// rejected.
func (d *Document) InsertEvent(prot *protocol.Protocol, ev *event.Event, tick int) error {
	if tick < 0 {
		return errors.Errorf("doc: negative tick %d", tick)
	}
	if (ev.Kind == event.NoteOn || ev.Kind == event.NoteOff) && ev.Partner == 0 {
		return errors.Wrap(ErrPairing, "refusing to insert an unpaired note event")
	}
	ev.Tick = tick
	d.register(ev)
	c := d.channelFor(ev)
	if prot != nil && prot.Recording() {
		old := c.SnapshotState()
		c.insert(ev)
		prot.Push(c, old, c.SnapshotState())
	} else {
		c.insert(ev)
	}
	if t := d.TrackByID(ev.Track); t != nil && tick > t.end {
		t.end = tick
	}
	return nil
}

// RemoveEvent removes ev by identity and reports whether it was found.
// Removing one half of a note pair leaves the other orphaned; that defect is
// caught by CheckPairing before any save. Higher-level operations remove
// both halves together.
func (d *Document) RemoveEvent(prot *protocol.Protocol, ev *event.Event) bool {
	c := d.channelFor(ev)
	if prot != nil && prot.Recording() {
		old := c.SnapshotState()
		if !c.remove(ev) {
			return false
		}
		prot.Push(c, old, c.SnapshotState())
		return true
	}
	return c.remove(ev)
}

// InsertNote atomically builds a linked NoteOn/NoteOff pair and inserts both
// into the channel under one channel snapshot. Returns the NoteOn.
func (d *Document) InsertNote(prot *protocol.Protocol, channel, note, velocity uint8, startTick, endTick int, track event.TrackID) (*event.Event, error) {
	if startTick < 0 || endTick < startTick {
		return nil, errors.Errorf("doc: bad note range [%d, %d)", startTick, endTick)
	}
	if channel > 15 {
		return nil, errors.Errorf("doc: note channel %d out of range", channel)
	}
	on := &event.Event{Kind: event.NoteOn, Tick: startTick, Channel: channel, Track: track, Note: note, Velocity: velocity}
	off := &event.Event{Kind: event.NoteOff, Tick: endTick, Channel: channel, Track: track, Note: note}
	d.register(on)
	d.register(off)
	on.Partner = off.ID
	off.Partner = on.ID
	c := d.channels[channel]
	if prot != nil && prot.Recording() {
		old := c.SnapshotState()
		c.insert(on)
		c.insert(off)
		prot.Push(c, old, c.SnapshotState())
	} else {
		c.insert(on)
		c.insert(off)
	}
	if t := d.TrackByID(track); t != nil && endTick > t.end {
		t.end = endTick
	}
	return on, nil
}

// CheckPairing verifies the note invariant over every channel: each NoteOn
// references a present NoteOff at a tick >= its own, and vice versa.
func (d *Document) CheckPairing() []error {
	present := make(map[event.ID]*event.Event)
	for _, c := range d.channels {
		for _, ev := range c.events {
			present[ev.ID] = ev
		}
	}
	var errs []error
	for _, c := range d.channels {
		for _, ev := range c.events {
			if ev.Kind != event.NoteOn && ev.Kind != event.NoteOff {
				continue
			}
			partner, ok := present[ev.Partner]
			if ev.Partner == 0 || !ok {
				errs = append(errs, errors.Wrapf(ErrPairing, "%v has no partner in the index", ev))
				continue
			}
			if ev.Kind == event.NoteOn && partner.Tick < ev.Tick {
				errs = append(errs, errors.Wrapf(ErrPairing, "%v ends before it starts", ev))
			}
		}
	}
	return errs
}

// SnapshotForRead deep-copies the document for a concurrent reader such as
// autosave. Channel indices are mutated in place during edits, so readers
// off the edit thread must never see the live containers.
func (d *Document) SnapshotForRead() *Document {
	nd := New(d.resolution)
	nd.path = d.path
	nd.cursorTick = d.cursorTick
	nd.pauseTick = d.pauseTick
	for _, t := range d.tracks {
		nt := t.CopyTo(nd)
		nt.id = t.id
		nt.end = t.end
	}
	nd.nextTrack = d.nextTrack
	clones := make(map[event.ID]*event.Event)
	for ci, c := range d.channels {
		for _, ev := range c.events {
			cl := ev.Clone()
			cl.Track = ev.Track
			nd.register(cl)
			clones[ev.ID] = cl
			nd.channels[ci].events = append(nd.channels[ci].events, cl)
		}
	}
	// Relink note pairs through the clone map.
	for _, c := range d.channels {
		for _, ev := range c.events {
			if ev.Partner != 0 {
				if p, ok := clones[ev.Partner]; ok {
					clones[ev.ID].Partner = p.ID
				}
			}
		}
	}
	nd.dirty = d.dirty
	return nd
}
