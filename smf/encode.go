package smf

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/event"
)

// Encode serializes the file back into SMF bytes. Events are written per
// track in ascending tick order. Running status is applied whenever the
// previous event in the chunk carried the same status byte; under that fixed
// policy an unmodified decode/encode round trip is byte-identical, except
// for encodings the wire format leaves ambiguous (velocity-zero NoteOns are
// always re-encoded as real NoteOffs).
func Encode(f *File) ([]byte, error) {
	if len(f.Tracks) > 0xFFFF {
		return nil, errors.Wrapf(ErrFormat, "%d tracks exceed the chunk count field", len(f.Tracks))
	}
	var out bytes.Buffer
	out.WriteString("MThd")
	binary.Write(&out, binary.BigEndian, uint32(6))
	binary.Write(&out, binary.BigEndian, f.Format)
	binary.Write(&out, binary.BigEndian, uint16(len(f.Tracks)))
	binary.Write(&out, binary.BigEndian, f.Resolution)
	for i := range f.Tracks {
		body, err := encodeTrack(&f.Tracks[i])
		if err != nil {
			return nil, errors.Wrapf(err, "track %d", i)
		}
		out.WriteString("MTrk")
		binary.Write(&out, binary.BigEndian, uint32(len(body)))
		out.Write(body)
	}
	return out.Bytes(), nil
}

func encodeTrack(trk *Track) ([]byte, error) {
	events := make([]*event.Event, len(trk.Events))
	copy(events, trk.Events)
	// Stable sort keeps same-tick events in their insertion order.
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })

	var body bytes.Buffer
	lastTick := 0
	runningStatus := byte(0)
	for _, ev := range events {
		if ev.Tick < lastTick {
			return nil, errors.Wrapf(ErrFormat, "event tick %d before track position %d", ev.Tick, lastTick)
		}
		if err := appendVarLen(&body, ev.Tick-lastTick); err != nil {
			return nil, err
		}
		lastTick = ev.Tick
		if err := encodeEvent(&body, ev, &runningStatus); err != nil {
			return nil, err
		}
	}
	end := trk.End
	if end < lastTick {
		end = lastTick
	}
	if err := appendVarLen(&body, end-lastTick); err != nil {
		return nil, err
	}
	body.Write([]byte{0xFF, metaEndOfTrack, 0x00})
	return body.Bytes(), nil
}

func dataByte(name string, v uint8) (byte, error) {
	if v > 0x7F {
		return 0, errors.Wrapf(ErrFormat, "%s %d out of 7-bit range", name, v)
	}
	return v, nil
}

// writeVoice emits a channel voice message, omitting the status byte when it
// matches the running status.
func writeVoice(buf *bytes.Buffer, statusNibble byte, channel uint8, runningStatus *byte, data ...byte) error {
	if channel > 0x0F {
		return errors.Wrapf(ErrFormat, "channel %d out of range", channel)
	}
	status := statusNibble | channel
	if status != *runningStatus {
		buf.WriteByte(status)
		*runningStatus = status
	}
	buf.Write(data)
	return nil
}

// writeMeta emits a meta event. Meta events reset the running status.
func writeMeta(buf *bytes.Buffer, metaType byte, payload []byte, runningStatus *byte) error {
	*runningStatus = 0
	buf.WriteByte(0xFF)
	buf.WriteByte(metaType)
	if err := appendVarLen(buf, len(payload)); err != nil {
		return err
	}
	buf.Write(payload)
	return nil
}

func encodeEvent(buf *bytes.Buffer, ev *event.Event, runningStatus *byte) error {
	switch ev.Kind {
	case event.NoteOn:
		note, err := dataByte("note", ev.Note)
		if err != nil {
			return err
		}
		vel, err := dataByte("velocity", ev.Velocity)
		if err != nil {
			return err
		}
		if vel == 0 {
			// A zero-velocity NoteOn would decode as a NoteOff and break the
			// pairing invariant on the next load.
			return errors.Wrap(ErrFormat, "NoteOn with zero velocity")
		}
		return writeVoice(buf, statusNoteOn, ev.Channel, runningStatus, note, vel)
	case event.NoteOff:
		note, err := dataByte("note", ev.Note)
		if err != nil {
			return err
		}
		vel, err := dataByte("velocity", ev.Velocity)
		if err != nil {
			return err
		}
		return writeVoice(buf, statusNoteOff, ev.Channel, runningStatus, note, vel)
	case event.KeyPressure:
		note, err := dataByte("note", ev.Note)
		if err != nil {
			return err
		}
		val, err := dataByte("pressure", ev.Value)
		if err != nil {
			return err
		}
		return writeVoice(buf, statusKeyPressure, ev.Channel, runningStatus, note, val)
	case event.ControlChange:
		ctrl, err := dataByte("controller", ev.Controller)
		if err != nil {
			return err
		}
		val, err := dataByte("value", ev.Value)
		if err != nil {
			return err
		}
		return writeVoice(buf, statusControlChange, ev.Channel, runningStatus, ctrl, val)
	case event.ProgramChange:
		val, err := dataByte("program", ev.Value)
		if err != nil {
			return err
		}
		return writeVoice(buf, statusProgramChange, ev.Channel, runningStatus, val)
	case event.ChannelPressure:
		val, err := dataByte("pressure", ev.Value)
		if err != nil {
			return err
		}
		return writeVoice(buf, statusChannelPressure, ev.Channel, runningStatus, val)
	case event.PitchBend:
		if ev.Bend < 0 || ev.Bend > 0x3FFF {
			return errors.Wrapf(ErrFormat, "pitch bend %d out of 14-bit range", ev.Bend)
		}
		lsb := byte(ev.Bend & 0x7F)
		msb := byte(ev.Bend >> 7)
		return writeVoice(buf, statusPitchBend, ev.Channel, runningStatus, lsb, msb)
	case event.TempoChange:
		t := ev.MicrosPerQuarter
		if t <= 0 || t > 0xFFFFFF {
			return errors.Wrapf(ErrFormat, "tempo %d out of 24-bit range", t)
		}
		return writeMeta(buf, metaTempo, []byte{byte(t >> 16), byte(t >> 8), byte(t)}, runningStatus)
	case event.TimeSignature:
		return writeMeta(buf, metaTimeSignature,
			[]byte{ev.Num, ev.DenomPow, ev.ClocksPerClick, ev.Notated32nds}, runningStatus)
	case event.KeySignature:
		mm := byte(0)
		if ev.Minor {
			mm = 1
		}
		return writeMeta(buf, metaKeySignature, []byte{byte(ev.SharpsFlats), mm}, runningStatus)
	case event.Text:
		if ev.TextKind < 0x01 || ev.TextKind > 0x07 {
			return errors.Wrapf(ErrFormat, "text sub-type %d out of range", ev.TextKind)
		}
		return writeMeta(buf, byte(ev.TextKind), []byte(ev.Text), runningStatus)
	case event.SystemExclusive:
		*runningStatus = 0
		buf.WriteByte(0xF0)
		if err := appendVarLen(buf, len(ev.Data)+1); err != nil {
			return err
		}
		buf.Write(ev.Data)
		buf.WriteByte(0xF7)
		return nil
	case event.Unknown:
		return writeMeta(buf, ev.MetaType, ev.Data, runningStatus)
	}
	return errors.Wrapf(ErrUnknownEvent, "kind %v has no wire encoding", ev.Kind)
}
