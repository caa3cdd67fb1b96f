package doc

import "github.com/quaverhq/quaver/event"

// Track groups events by a persistent id. It stores no events itself: events
// reference their track, and the channels stay the authoritative indices.
type Track struct {
	doc *Document
	id  event.TrackID
	// end is the tick of the end-of-track marker from the file this track
	// was loaded from, kept so an unmodified save reproduces it.
	end int

	Name           string
	DefaultChannel uint8
	Visible        bool
	Mute           bool
}

func (t *Track) ID() event.TrackID { return t.id }
func (t *Track) EndTick() int { return t.end }

// CopyTo deep-copies the track's metadata into another document. Events are
// not copied; they belong to channels, not tracks.
func (t *Track) CopyTo(dst *Document) *Track {
	nt := dst.AddTrack(t.Name)
	nt.DefaultChannel = t.DefaultChannel
	nt.Visible = t.Visible
	nt.Mute = t.Mute
	return nt
}

type trackState struct {
	name           string
	defaultChannel uint8
	visible        bool
	mute           bool
	end            int
}

func (t *Track) SnapshotState() any {
	return trackState{
		name:           t.Name,
		defaultChannel: t.DefaultChannel,
		visible:        t.Visible,
		mute:           t.Mute,
		end:            t.end,
	}
}

func (t *Track) RestoreState(state any) {
	s := state.(trackState)
	t.Name = s.name
	t.DefaultChannel = s.defaultChannel
	t.Visible = s.visible
	t.Mute = s.mute
	t.end = s.end
}
