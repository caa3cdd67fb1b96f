// Package player renders a document to live MIDI output. Playback runs on a
// detached snapshot of the document, so edits made while the transport is
// rolling never race the scheduler goroutine.
package player

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/event"
)

const ccAllNotesOff = 123

// Player schedules channel voice events through an injected send function.
// Wire send to midi.SendTo(outPort) for real output, or to a capture func
// in tests.
type Player struct {
	send func(midi.Message) error

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func New(send func(midi.Message) error) *Player {
	return &Player{send: send}
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

// Start begins playback of d at fromTick. The document is snapshotted up
// front; mute and solo flags are read once at start. Start returns
// immediately, playback runs until the last event or Stop.
func (p *Player) Start(d *doc.Document, fromTick int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return errors.New("player: already playing")
	}
	snap := d.SnapshotForRead()
	audible := audibleChannels(snap)

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(snap, fromTick, audible, p.stop, p.done)
	return nil
}

// Stop halts playback and silences every sounding note. It is a no-op when
// nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Wait blocks until the current playback ends on its own or via Stop.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// audibleChannels folds mute and solo flags into a per-channel mask. Any
// soloed channel silences every non-soloed one; otherwise everything not
// muted sounds.
func audibleChannels(d *doc.Document) [16]bool {
	var mask [16]bool
	anySolo := false
	for i := 0; i < 16; i++ {
		if d.Channel(i).Solo {
			anySolo = true
		}
	}
	for i := 0; i < 16; i++ {
		c := d.Channel(i)
		if anySolo {
			mask[i] = c.Solo
		} else {
			mask[i] = !c.Mute
		}
	}
	return mask
}

func (p *Player) run(d *doc.Document, fromTick int, audible [16]bool, stop, done chan struct{}) {
	defer close(done)
	defer p.allNotesOff(audible)
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.stop, p.done = nil, nil
		}
		p.mu.Unlock()
	}()

	tm := d.TimeMap()
	events := d.EventsBetween(fromTick, d.MaxTick()+1)
	began := time.Now()
	baseMs := tm.MsOfTick(fromTick)
	anchorTick, anchorMs := fromTick, baseMs

	for _, ev := range events {
		anchorMs = tm.MsOfTickFrom(anchorTick, anchorMs, ev.Tick)
		anchorTick = ev.Tick
		due := time.Duration(anchorMs-baseMs) * time.Millisecond
		if wait := due - time.Since(began); wait > 0 {
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}
		msg := translate(ev)
		if msg == nil || !audible[ev.Channel] {
			continue
		}
		if t := d.TrackByID(ev.Track); t != nil && t.Mute {
			continue
		}
		if err := p.send(msg); err != nil {
			return
		}
	}
}

// translate maps a channel voice event to its wire message. Conductor and
// meta events have no wire form and yield nil.
func translate(ev *event.Event) midi.Message {
	switch ev.Kind {
	case event.NoteOn:
		return midi.NoteOn(ev.Channel, ev.Note, ev.Velocity)
	case event.NoteOff:
		return midi.NoteOff(ev.Channel, ev.Note)
	case event.ControlChange:
		return midi.ControlChange(ev.Channel, ev.Controller, ev.Value)
	case event.ProgramChange:
		return midi.ProgramChange(ev.Channel, ev.Value)
	case event.PitchBend:
		return midi.Pitchbend(ev.Channel, int16(ev.Bend-8192))
	case event.ChannelPressure:
		return midi.AfterTouch(ev.Channel, ev.Value)
	case event.KeyPressure:
		return midi.PolyAfterTouch(ev.Channel, ev.Note, ev.Value)
	default:
		return nil
	}
}

func (p *Player) allNotesOff(audible [16]bool) {
	for ch := uint8(0); ch < 16; ch++ {
		if audible[ch] {
			p.send(midi.ControlChange(ch, ccAllNotesOff, 0))
		}
	}
}
