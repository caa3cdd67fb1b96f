// Package event defines the tagged-variant event model shared by the whole
// document: one flat struct with a Kind discriminant instead of a type
// hierarchy, so snapshot/restore are plain value copies.
package event

import "fmt"

// ID identifies an event inside its owning document's arena. Zero means
// "no event".
type ID int32

// TrackID is the persistent id of the track an event belongs to. Track ids
// survive track removal, so a stale id is a checkable condition rather than a
// dangling pointer.
type TrackID int32

const NoTrack TrackID = -1

// ChannelNone marks channel-independent meta kinds (tempo, time signature,
// text, key signature, SysEx, unknown).
const ChannelNone uint8 = 0xFF

type Kind uint8

const (
	NoteOn Kind = iota
	NoteOff
	ControlChange
	ProgramChange
	PitchBend
	ChannelPressure
	KeyPressure
	KeySignature
	TimeSignature
	TempoChange
	Text
	SystemExclusive
	Unknown
)

var kindNames = map[Kind]string{
	NoteOn:          "NoteOn",
	NoteOff:         "NoteOff",
	ControlChange:   "ControlChange",
	ProgramChange:   "ProgramChange",
	PitchBend:       "PitchBend",
	ChannelPressure: "ChannelPressure",
	KeyPressure:     "KeyPressure",
	KeySignature:    "KeySignature",
	TimeSignature:   "TimeSignature",
	TempoChange:     "TempoChange",
	Text:            "Text",
	SystemExclusive: "SystemExclusive",
	Unknown:         "Unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ChannelVoice reports whether the kind is a channel voice message, i.e.
// carries a real 0-15 channel on the wire.
func (k Kind) ChannelVoice() bool {
	switch k {
	case NoteOn, NoteOff, ControlChange, ProgramChange, PitchBend,
		ChannelPressure, KeyPressure:
		return true
	}
	return false
}

// TextKind values match the SMF meta-event type bytes 0x01-0x07, so they are
// used directly during serialization.
type TextKind uint8

const (
	TextPlain      TextKind = 0x01
	TextCopyright  TextKind = 0x02
	TextTrackName  TextKind = 0x03
	TextInstrument TextKind = 0x04
	TextLyric      TextKind = 0x05
	TextMarker     TextKind = 0x06
	TextComment    TextKind = 0x07
)

// Event is the single variant type for every document event. Only the fields
// relevant to Kind are meaningful; the rest stay at their zero values.
type Event struct {
	ID      ID
	Kind    Kind
	Tick    int
	Channel uint8
	Track   TrackID

	// NoteOn / NoteOff / KeyPressure.
	Note     uint8
	Velocity uint8
	// Partner links a NoteOn to its NoteOff and vice versa. Zero is the
	// orphaned defect state that save refuses to serialize.
	Partner ID

	// ControlChange / ProgramChange / ChannelPressure.
	Controller uint8
	Value      uint8

	// PitchBend, 0..16383, center 8192.
	Bend int

	// TempoChange.
	MicrosPerQuarter int

	// TimeSignature. DenomPow is the negative power of two from the wire
	// format: 3/4 is Num=3, DenomPow=2.
	Num            uint8
	DenomPow       uint8
	ClocksPerClick uint8
	Notated32nds   uint8

	// KeySignature: -7 (flats) .. +7 (sharps).
	SharpsFlats int8
	Minor       bool

	// Text.
	TextKind TextKind
	Text     string

	// SystemExclusive payload (framing bytes stripped), or the raw payload of
	// an Unknown meta event whose type byte is MetaType.
	MetaType uint8
	Data     []byte
}

// State is a fully detached snapshot of one event's mutable fields. It keeps
// its own copy of the byte payload so later edits to the live event cannot
// reach into it.
type State struct {
	ev Event
}

// SnapshotState implements the protocol entity contract.
func (e *Event) SnapshotState() any {
	s := State{ev: *e}
	if e.Data != nil {
		s.ev.Data = append([]byte(nil), e.Data...)
	}
	return s
}

// RestoreState overwrites the event in place from a prior snapshot,
// preserving its identity so back-references through the id stay valid.
func (e *Event) RestoreState(state any) {
	s := state.(State)
	id := e.ID
	*e = s.ev
	e.ID = id
	if s.ev.Data != nil {
		e.Data = append([]byte(nil), s.ev.Data...)
	}
}

// Clone returns an independent copy of the event with no identity. Used when
// handing event data across the playback boundary or into another document.
func (e *Event) Clone() *Event {
	c := *e
	c.ID = 0
	c.Partner = 0
	if e.Data != nil {
		c.Data = append([]byte(nil), e.Data...)
	}
	return &c
}

// BPM returns the tempo in beats per minute for a TempoChange event.
func (e *Event) BPM() float64 {
	if e.MicrosPerQuarter == 0 {
		return 0
	}
	return 60000000.0 / float64(e.MicrosPerQuarter)
}

// Denominator resolves DenomPow for display: DenomPow=2 means 4.
func (e *Event) Denominator() int {
	return 1 << e.DenomPow
}

func (e *Event) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("tick %d ch %d NoteOn note=%d vel=%d", e.Tick, e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return fmt.Sprintf("tick %d ch %d NoteOff note=%d", e.Tick, e.Channel, e.Note)
	case ControlChange:
		return fmt.Sprintf("tick %d ch %d CC %d=%d", e.Tick, e.Channel, e.Controller, e.Value)
	case ProgramChange:
		return fmt.Sprintf("tick %d ch %d Program %d", e.Tick, e.Channel, e.Value)
	case PitchBend:
		return fmt.Sprintf("tick %d ch %d PitchBend %d", e.Tick, e.Channel, e.Bend)
	case ChannelPressure:
		return fmt.Sprintf("tick %d ch %d ChannelPressure %d", e.Tick, e.Channel, e.Value)
	case KeyPressure:
		return fmt.Sprintf("tick %d ch %d KeyPressure note=%d val=%d", e.Tick, e.Channel, e.Note, e.Value)
	case TempoChange:
		return fmt.Sprintf("tick %d Tempo %.2f BPM", e.Tick, e.BPM())
	case TimeSignature:
		return fmt.Sprintf("tick %d TimeSig %d/%d", e.Tick, e.Num, e.Denominator())
	case KeySignature:
		return fmt.Sprintf("tick %d KeySig %d minor=%v", e.Tick, e.SharpsFlats, e.Minor)
	case Text:
		return fmt.Sprintf("tick %d Text(%d) %q", e.Tick, e.TextKind, e.Text)
	case SystemExclusive:
		return fmt.Sprintf("tick %d SysEx %d bytes", e.Tick, len(e.Data))
	case Unknown:
		return fmt.Sprintf("tick %d Unknown meta 0x%02x, %d bytes", e.Tick, e.MetaType, len(e.Data))
	}
	return fmt.Sprintf("tick %d %v", e.Tick, e.Kind)
}
