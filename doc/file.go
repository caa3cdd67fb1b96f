package doc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/smf"
)

// Load builds a document from SMF bytes. Codec-level anomalies and pairing
// repairs accumulate into the returned log; a header-level failure returns a
// nil document so callers never observe a partially constructed one.
func Load(data []byte) (*Document, []string, error) {
	f, log, err := smf.Decode(data)
	if err != nil {
		return nil, log, err
	}
	d := New(int(f.Resolution))
	d.format = int(f.Format)
	for ti := range f.Tracks {
		trk := &f.Tracks[ti]
		t := d.AddTrack(trackName(trk))
		t.end = trk.End
		for _, ev := range trk.Events {
			ev.Track = t.id
			d.register(ev)
			d.channelFor(ev).insert(ev)
		}
		log = append(log, d.pairTrackNotes(t, trk.End)...)
	}
	d.dirty = false
	return d, log, nil
}

// FromFile reads and loads path, remembering it as the document's path.
func FromFile(path string) (*Document, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	d, log, err := Load(data)
	if err != nil {
		return nil, log, err
	}
	d.path = path
	return d, log, nil
}

// trackName pulls the name from the track's name meta event, if any. The
// event itself stays in the stream so an unmodified save reproduces it.
func trackName(trk *smf.Track) string {
	for _, ev := range trk.Events {
		if ev.Kind == event.Text && ev.TextKind == event.TextTrackName {
			return ev.Text
		}
	}
	return ""
}

// pairTrackNotes links NoteOns to NoteOffs per channel and note number in
// first-on/first-off order. A NoteOn left hanging at the end of its track
// gets a synthesized NoteOff at the track-end tick; a NoteOff with no
// preceding NoteOn is dropped. Both repairs are logged.
func (d *Document) pairTrackNotes(t *Track, trackEnd int) []string {
	var log []string
	for _, c := range d.channels {
		open := make(map[uint8][]*event.Event)
		var drop []*event.Event
		for _, ev := range c.events {
			if ev.Track != t.id || ev.Partner != 0 {
				continue
			}
			switch ev.Kind {
			case event.NoteOn:
				open[ev.Note] = append(open[ev.Note], ev)
			case event.NoteOff:
				if ons := open[ev.Note]; len(ons) > 0 {
					on := ons[0]
					open[ev.Note] = ons[1:]
					on.Partner = ev.ID
					ev.Partner = on.ID
				} else {
					drop = append(drop, ev)
					log = append(log, fmt.Sprintf("dropping NoteOff without NoteOn: %v", ev))
				}
			}
		}
		for _, ons := range open {
			for _, on := range ons {
				end := trackEnd
				if end < on.Tick {
					end = on.Tick
				}
				off := &event.Event{
					Kind:    event.NoteOff,
					Tick:    end,
					Channel: on.Channel,
					Track:   on.Track,
					Note:    on.Note,
				}
				d.register(off)
				on.Partner = off.ID
				off.Partner = on.ID
				c.insert(off)
				log = append(log, fmt.Sprintf("synthesized NoteOff at track end for %v", on))
			}
		}
		for _, ev := range drop {
			c.remove(ev)
		}
	}
	return log
}

// buildFile regroups channel events by track for the codec. Within a track,
// same-tick events keep channel-number order and per-channel insertion
// order. A loaded document keeps the header format it came with; a fresh
// one derives it from the track count. Format 0 cannot carry more than one
// track, so it is promoted to 1 when tracks were added.
func (d *Document) buildFile() *smf.File {
	f := &smf.File{Resolution: uint16(d.resolution)}
	format := d.format
	if format < 0 {
		if len(d.tracks) <= 1 {
			format = 0
		} else {
			format = 1
		}
	}
	if format == 0 && len(d.tracks) > 1 {
		format = 1
	}
	f.Format = uint16(format)
	for _, t := range d.tracks {
		trk := smf.Track{End: t.end}
		for _, c := range d.channels {
			for _, ev := range c.events {
				if ev.Track == t.id {
					trk.Events = append(trk.Events, ev)
				}
			}
		}
		sort.SliceStable(trk.Events, func(i, j int) bool {
			return trk.Events[i].Tick < trk.Events[j].Tick
		})
		f.Tracks = append(f.Tracks, trk)
	}
	return f
}

// Export serializes the document to SMF bytes without touching the
// filesystem. The clipboard reuses this as its interchange format.
func (d *Document) Export() ([]byte, error) {
	if errs := d.CheckPairing(); len(errs) > 0 {
		return nil, errors.Wrapf(ErrPairing, "%d orphaned note events, repair before saving", len(errs))
	}
	return smf.Encode(d.buildFile())
}

// Save writes the document to path, replacing it atomically: bytes go to a
// uniquely named temp file in the same directory first, then rename. A
// failed save leaves no partial file behind. On success the dirty flag
// clears and path becomes the document's path.
func (d *Document) Save(path string) error {
	data, err := d.Export()
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replacing %s", path)
	}
	d.path = path
	d.dirty = false
	return nil
}
