package player

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/gomidi/midi/v2"

	"github.com/quaverhq/quaver/doc"
)

type capture struct {
	mu   sync.Mutex
	msgs []midi.Message
}

func (c *capture) send(msg midi.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *capture) messages() []midi.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]midi.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func shortDoc(t *testing.T) *doc.Document {
	t.Helper()
	d := doc.New(480)
	trk := d.AddTrack("test")
	// 48 ticks is 50 ms at the default tempo; the test stays fast.
	if _, err := d.InsertNote(nil, 0, 60, 100, 0, 48, trk.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := d.InsertNote(nil, 1, 64, 90, 0, 48, trk.ID()); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestPlayerSendsNotesInOrder(t *testing.T) {
	assert := assert.New(t)
	d := shortDoc(t)
	cap := &capture{}
	p := New(cap.send)

	assert.NoError(p.Start(d, 0))
	assert.Error(p.Start(d, 0)) // already playing
	p.Wait()
	assert.False(p.Playing())

	msgs := cap.messages()
	// Two NoteOns, two NoteOffs, then all-notes-off on every open channel.
	assert.GreaterOrEqual(len(msgs), 4)
	var ch, key, vel uint8
	assert.True(msgs[0].GetNoteOn(&ch, &key, &vel))
	assert.Equal(uint8(60), key)
	assert.Equal(uint8(100), vel)
}

func TestPlayerSkipsMutedChannels(t *testing.T) {
	assert := assert.New(t)
	d := shortDoc(t)
	d.Channel(1).Mute = true
	cap := &capture{}
	p := New(cap.send)

	assert.NoError(p.Start(d, 0))
	p.Wait()

	for _, msg := range cap.messages() {
		var ch, key, vel uint8
		if msg.GetNoteOn(&ch, &key, &vel) || msg.GetNoteOff(&ch, &key, &vel) {
			assert.Equal(uint8(0), ch)
		}
	}
}

func TestPlayerSoloSilencesOthers(t *testing.T) {
	assert := assert.New(t)
	d := shortDoc(t)
	d.Channel(1).Solo = true
	cap := &capture{}
	p := New(cap.send)

	assert.NoError(p.Start(d, 0))
	p.Wait()

	for _, msg := range cap.messages() {
		var ch, key, vel uint8
		if msg.GetNoteOn(&ch, &key, &vel) || msg.GetNoteOff(&ch, &key, &vel) {
			assert.Equal(uint8(1), ch)
		}
	}
}

func TestPlayerStopSilences(t *testing.T) {
	assert := assert.New(t)
	d := doc.New(480)
	trk := d.AddTrack("test")
	// A long note so Stop interrupts mid-flight.
	if _, err := d.InsertNote(nil, 0, 60, 100, 0, 480*600, trk.ID()); err != nil {
		t.Fatal(err)
	}
	cap := &capture{}
	p := New(cap.send)

	assert.NoError(p.Start(d, 0))
	p.Stop()
	assert.False(p.Playing())

	msgs := cap.messages()
	assert.NotEmpty(msgs)
	var ch, cc, val uint8
	last := msgs[len(msgs)-1]
	assert.True(last.GetControlChange(&ch, &cc, &val))
	assert.Equal(uint8(ccAllNotesOff), cc)
}
