// Package smf reads and writes the Standard MIDI File binary format: header
// chunk, per-track chunks, variable-length delta times, running status, meta
// events and SysEx. It speaks only in terms of the event model; it has no
// knowledge of documents or the undo protocol.
package smf

import (
	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/event"
)

// Error taxonomy. Format errors abort a load; truncated streams abort the
// chunk they occur in; unknown events are recovered locally by materializing
// event.Unknown carriers.
var (
	ErrFormat       = errors.New("smf: bad file format")
	ErrTruncated    = errors.New("smf: truncated stream")
	ErrUnknownEvent = errors.New("smf: unknown event")
)

// Track is one decoded MTrk chunk: events carrying absolute ticks, in file
// order, plus the tick of the end-of-track marker.
type Track struct {
	Events []*event.Event
	End    int
}

// File is the codec-level view of a document: resolution plus per-track
// event lists. The document layer distributes events into channels; the
// codec neither knows nor cares.
type File struct {
	Format     uint16
	Resolution uint16
	Tracks     []Track
}

// Meta-event type bytes.
const (
	metaEndOfTrack    = 0x2F
	metaTempo         = 0x51
	metaTimeSignature = 0x58
	metaKeySignature  = 0x59
)

// Channel voice status nibbles.
const (
	statusNoteOff         = 0x80
	statusNoteOn          = 0x90
	statusKeyPressure     = 0xA0
	statusControlChange   = 0xB0
	statusProgramChange   = 0xC0
	statusChannelPressure = 0xD0
	statusPitchBend       = 0xE0
)
