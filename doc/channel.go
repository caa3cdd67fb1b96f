package doc

import (
	"sort"

	"github.com/quaverhq/quaver/event"
)

// Channel layout: 16 musical channels, one global stream for
// channel-independent meta events, and one conductor stream for tempo and
// time-signature events. Tempo and time signature stay logically
// channel-independent; the conductor stream just indexes them the same way
// the musical streams index theirs.
const (
	NumChannels      = 18
	ChannelGlobal    = 16
	ChannelConductor = 17
)

// Channel is the authoritative tick-ordered index of one event stream. It
// does not own event memory; the document's arena does.
type Channel struct {
	doc    *Document
	num    int
	events []*event.Event

	Visible bool
	Mute    bool
	Solo    bool
}

func newChannel(d *Document, num int) *Channel {
	return &Channel{doc: d, num: num, Visible: true}
}

func (c *Channel) Number() int { return c.num }

// Events returns the live tick-ordered index. Callers must not reorder it.
func (c *Channel) Events() []*event.Event { return c.events }

func (c *Channel) Len() int { return len(c.events) }
func (c *Channel) IsEmpty() bool { return len(c.events) == 0 }

// insert places ev after every event already at its tick, so equal-tick
// ordering is stable insertion order rather than a container accident.
func (c *Channel) insert(ev *event.Event) {
	idx := sort.Search(len(c.events), func(i int) bool { return c.events[i].Tick > ev.Tick })
	c.events = append(c.events, nil)
	copy(c.events[idx+1:], c.events[idx:])
	c.events[idx] = ev
	c.doc.noteMutation(c.num)
}

// remove deletes ev by identity and reports whether it was present. Callers
// must check the result; silently "removing" an absent event would mask a
// bookkeeping bug.
func (c *Channel) remove(ev *event.Event) bool {
	for i, e := range c.events {
		if e == ev {
			c.events = append(c.events[:i], c.events[i+1:]...)
			c.doc.noteMutation(c.num)
			return true
		}
	}
	return false
}

// EventsBetween returns the events with startTick <= tick < endTick, in tick
// order.
func (c *Channel) EventsBetween(startTick, endTick int) []*event.Event {
	lo := sort.Search(len(c.events), func(i int) bool { return c.events[i].Tick >= startTick })
	hi := sort.Search(len(c.events), func(i int) bool { return c.events[i].Tick >= endTick })
	out := make([]*event.Event, hi-lo)
	copy(out, c.events[lo:hi])
	return out
}

// channelState is the snapshot used for undo: the ordered index plus flags.
// It restores the *structure* of the channel; event field values have their
// own snapshots.
type channelState struct {
	events  []*event.Event
	visible bool
	mute    bool
	solo    bool
}

func (c *Channel) SnapshotState() any {
	s := channelState{
		events:  make([]*event.Event, len(c.events)),
		visible: c.Visible,
		mute:    c.Mute,
		solo:    c.Solo,
	}
	copy(s.events, c.events)
	return s
}

func (c *Channel) RestoreState(state any) {
	s := state.(channelState)
	c.events = make([]*event.Event, len(s.events))
	copy(c.events, s.events)
	c.Visible = s.visible
	c.Mute = s.mute
	c.Solo = s.solo
	c.doc.noteMutation(c.num)
}
