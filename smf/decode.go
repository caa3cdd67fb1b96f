package smf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/quaverhq/quaver/event"
)

// fileHeader matches the MThd chunk layout byte for byte.
type fileHeader struct {
	Magic    [4]byte
	Length   uint32
	Format   uint16
	NumTrks  uint16
	Division uint16
}

// Decode parses a complete SMF byte stream. Header corruption aborts the
// load with an error. Anomalies inside track chunks are tolerated: they are
// appended to the returned log and decoding continues with the next
// recoverable position, so a partially corrupt file still yields a
// best-effort File for inspection and repair.
func Decode(data []byte) (*File, []string, error) {
	r := bytes.NewReader(data)
	var h fileHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return nil, nil, errors.Wrap(ErrFormat, "file shorter than an MThd header")
	}
	if string(h.Magic[:]) != "MThd" {
		return nil, nil, errors.Wrapf(ErrFormat, "bad magic %q", string(h.Magic[:]))
	}
	if h.Length != 6 {
		return nil, nil, errors.Wrapf(ErrFormat, "MThd length %d, want 6", h.Length)
	}
	if h.Format > 2 {
		return nil, nil, errors.Wrapf(ErrFormat, "unsupported format %d", h.Format)
	}
	if h.Division&0x8000 != 0 {
		// SMPTE division would poison every tick computation downstream, so
		// it is rejected at the parse level rather than half-supported.
		return nil, nil, errors.Wrapf(ErrFormat, "SMPTE division 0x%04x not supported", h.Division)
	}
	if h.Division == 0 {
		return nil, nil, errors.Wrap(ErrFormat, "zero ticks-per-quarter division")
	}

	f := &File{Format: h.Format, Resolution: h.Division}
	var log []string
	offset := 14
	for len(f.Tracks) < int(h.NumTrks) {
		if offset >= len(data) {
			log = append(log, fmt.Sprintf("file ends after %d of %d declared tracks", len(f.Tracks), h.NumTrks))
			break
		}
		if len(data)-offset < 8 {
			log = append(log, "trailing bytes too short for a chunk header, ignored")
			break
		}
		chunkType := string(data[offset : offset+4])
		chunkLen := int(binary.BigEndian.Uint32(data[offset+4 : offset+8]))
		body := data[offset+8:]
		if chunkLen > len(body) {
			log = append(log, fmt.Sprintf("chunk %q claims %d bytes but only %d remain, truncated",
				chunkType, chunkLen, len(body)))
			chunkLen = len(body)
		}
		body = body[:chunkLen]
		offset += 8 + chunkLen
		if chunkType != "MTrk" {
			// Alien chunks are legal in SMF; skip them whole.
			log = append(log, fmt.Sprintf("skipping non-track chunk %q (%d bytes)", chunkType, chunkLen))
			continue
		}
		trk := decodeTrack(len(f.Tracks), body, &log)
		f.Tracks = append(f.Tracks, trk)
	}
	return f, log, nil
}

// decodeTrack parses one MTrk body. On an unrecoverable in-track anomaly the
// remainder of the chunk is abandoned with a log entry; everything decoded up
// to that point is kept.
func decodeTrack(index int, body []byte, log *[]string) Track {
	var trk Track
	r := bytes.NewReader(body)
	tick := 0
	runningStatus := byte(0)
	logf := func(format string, args ...any) {
		*log = append(*log, fmt.Sprintf("track %d: ", index)+fmt.Sprintf(format, args...))
	}
	for {
		delta, err := readVarLen(r)
		if err != nil {
			if err != io.EOF {
				logf("bad delta time at tick %d: %v", tick, err)
			}
			break
		}
		tick += delta
		b, err := r.ReadByte()
		if err != nil {
			logf("chunk ends after a delta time at tick %d", tick)
			break
		}
		switch {
		case b == 0xFF:
			runningStatus = 0
			done, err := decodeMeta(r, tick, &trk)
			if err != nil {
				logf("at tick %d: %v, abandoning rest of chunk", tick, err)
				trk.End = tick
				return trk
			}
			if done {
				trk.End = tick
				return trk
			}
		case b == 0xF0 || b == 0xF7:
			runningStatus = 0
			if err := decodeSysEx(r, tick, b, &trk); err != nil {
				logf("at tick %d: %v, abandoning rest of chunk", tick, err)
				trk.End = tick
				return trk
			}
		case b >= 0xF1:
			// System common / realtime bytes have no place in an SMF track
			// and no reliable length, so there is no next parseable
			// delta-time to skip to.
			logf("unexpected status byte 0x%02X at tick %d, abandoning rest of chunk", b, tick)
			trk.End = tick
			return trk
		default:
			if err := decodeChannelMessage(r, tick, b, &runningStatus, &trk); err != nil {
				logf("at tick %d: %v, abandoning rest of chunk", tick, err)
				trk.End = tick
				return trk
			}
		}
	}
	// No end-of-track marker seen; the last event's tick bounds the track.
	trk.End = tick
	return trk
}

// decodeMeta parses a meta event after its 0xFF prefix. It returns done=true
// on the end-of-track marker. Unknown meta types are preserved verbatim as
// event.Unknown so they round-trip bit-exactly.
func decodeMeta(r *bytes.Reader, tick int, trk *Track) (done bool, err error) {
	metaType, err := r.ReadByte()
	if err != nil {
		return false, errors.Wrap(ErrTruncated, "meta event missing type byte")
	}
	length, err := readVarLen(r)
	if err != nil {
		return false, errors.Wrap(ErrTruncated, "meta event missing length")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return false, errors.Wrapf(ErrTruncated, "meta 0x%02X payload cut short", metaType)
	}

	ev := &event.Event{Tick: tick, Channel: event.ChannelNone}
	switch {
	case metaType == metaEndOfTrack:
		return true, nil
	case metaType == metaTempo:
		if length != 3 {
			return false, errors.Wrapf(ErrFormat, "tempo event with %d-byte payload", length)
		}
		ev.Kind = event.TempoChange
		ev.MicrosPerQuarter = int(payload[0])<<16 | int(payload[1])<<8 | int(payload[2])
	case metaType == metaTimeSignature:
		if length != 4 {
			return false, errors.Wrapf(ErrFormat, "time signature with %d-byte payload", length)
		}
		ev.Kind = event.TimeSignature
		ev.Num = payload[0]
		ev.DenomPow = payload[1]
		ev.ClocksPerClick = payload[2]
		ev.Notated32nds = payload[3]
	case metaType == metaKeySignature:
		if length != 2 {
			return false, errors.Wrapf(ErrFormat, "key signature with %d-byte payload", length)
		}
		ev.Kind = event.KeySignature
		ev.SharpsFlats = int8(payload[0])
		ev.Minor = payload[1] == 1
	case metaType >= 0x01 && metaType <= 0x07:
		ev.Kind = event.Text
		ev.TextKind = event.TextKind(metaType)
		ev.Text = string(payload)
	default:
		ev.Kind = event.Unknown
		ev.MetaType = metaType
		ev.Data = payload
	}
	trk.Events = append(trk.Events, ev)
	return false, nil
}

// decodeSysEx parses a SysEx event after its 0xF0/0xF7 prefix. The payload
// is stored without framing bytes.
func decodeSysEx(r *bytes.Reader, tick int, first byte, trk *Track) error {
	length, err := readVarLen(r)
	if err != nil {
		return errors.Wrap(ErrTruncated, "SysEx missing length")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return errors.Wrap(ErrTruncated, "SysEx payload cut short")
	}
	if first == 0xF0 && length > 0 && payload[length-1] == 0xF7 {
		payload = payload[:length-1]
	}
	trk.Events = append(trk.Events, &event.Event{
		Kind:    event.SystemExclusive,
		Tick:    tick,
		Channel: event.ChannelNone,
		Data:    payload,
	})
	return nil
}

// decodeChannelMessage parses a channel voice message whose first byte (a
// status byte, or the first data byte when running status applies) has been
// consumed.
func decodeChannelMessage(r *bytes.Reader, tick int, first byte, runningStatus *byte, trk *Track) error {
	status := first
	firstData := byte(0xFF)
	if status&0x80 == 0 {
		// Running status: the omitted status byte reuses the previous one
		// and first is already the first data byte.
		if *runningStatus == 0 {
			return errors.Wrapf(ErrUnknownEvent, "data byte 0x%02X with no running status", first)
		}
		status = *runningStatus
		firstData = first
	} else {
		*runningStatus = status
	}

	readData := func() (byte, error) {
		if firstData != 0xFF {
			b := firstData
			firstData = 0xFF
			if b > 0x7F {
				return 0, errors.Wrapf(ErrFormat, "data byte 0x%02X out of range", b)
			}
			return b, nil
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, errors.Wrap(ErrTruncated, "channel message cut short")
		}
		if b > 0x7F {
			return 0, errors.Wrapf(ErrFormat, "data byte 0x%02X out of range", b)
		}
		return b, nil
	}

	ev := &event.Event{Tick: tick, Channel: status & 0x0F}
	switch status & 0xF0 {
	case statusNoteOff:
		note, err := readData()
		if err != nil {
			return err
		}
		vel, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.NoteOff
		ev.Note = note
		ev.Velocity = vel
	case statusNoteOn:
		note, err := readData()
		if err != nil {
			return err
		}
		vel, err := readData()
		if err != nil {
			return err
		}
		ev.Note = note
		ev.Velocity = vel
		if vel == 0 {
			// Velocity-zero NoteOn is the wire's alternative NoteOff
			// encoding; normalize it on the way in.
			ev.Kind = event.NoteOff
		} else {
			ev.Kind = event.NoteOn
		}
	case statusKeyPressure:
		note, err := readData()
		if err != nil {
			return err
		}
		val, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.KeyPressure
		ev.Note = note
		ev.Value = val
	case statusControlChange:
		ctrl, err := readData()
		if err != nil {
			return err
		}
		val, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.ControlChange
		ev.Controller = ctrl
		ev.Value = val
	case statusProgramChange:
		val, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.ProgramChange
		ev.Value = val
	case statusChannelPressure:
		val, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.ChannelPressure
		ev.Value = val
	case statusPitchBend:
		lsb, err := readData()
		if err != nil {
			return err
		}
		msb, err := readData()
		if err != nil {
			return err
		}
		ev.Kind = event.PitchBend
		ev.Bend = int(msb)<<7 | int(lsb)
	default:
		return errors.Wrapf(ErrUnknownEvent, "status byte 0x%02X", status)
	}
	trk.Events = append(trk.Events, ev)
	return nil
}
