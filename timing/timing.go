// Package timing converts between musical ticks and wall-clock milliseconds
// through a piecewise-constant tempo map, and does measure arithmetic over a
// time-signature map. It is a pure function of the document's conductor
// events: queried, never mutated, by callers.
package timing

// DefaultMicrosPerQuarter is 120 BPM, the value assumed when a file carries
// no tempo event.
const DefaultMicrosPerQuarter = 500000

// TempoChange is one (tick, microseconds-per-quarter) entry.
type TempoChange struct {
	Tick             int
	MicrosPerQuarter int
}

// TimeSignature is one (tick, numerator, denominator-power) entry. DenomPow
// is the wire-format negative power of two: 6/8 is Num=6, DenomPow=3.
type TimeSignature struct {
	Tick     int
	Num      uint8
	DenomPow uint8
}

// Map is an immutable view of a document's tempo and time-signature streams,
// ordered by tick.
type Map struct {
	resolution int
	tempos     []TempoChange
	sigs       []TimeSignature
}

// NewMap builds a map for the given ticks-per-quarter resolution. Both
// slices must already be tick-ordered; either may be empty, in which case
// 120 BPM and 4/4 apply throughout.
func NewMap(resolution int, tempos []TempoChange, sigs []TimeSignature) *Map {
	if resolution <= 0 {
		resolution = 192
	}
	return &Map{resolution: resolution, tempos: tempos, sigs: sigs}
}

func (m *Map) Resolution() int { return m.resolution }

// tempoAt returns the microseconds-per-quarter in force at index i of the
// tempo list, falling back to the default when the list is empty.
func (m *Map) tempoAt(i int) int {
	if len(m.tempos) == 0 {
		return DefaultMicrosPerQuarter
	}
	if i < 0 {
		// Before the first entry: extrapolate from the first segment's rate.
		i = 0
	}
	return m.tempos[i].MicrosPerQuarter
}

// msPerTick is the instantaneous rate for a given microseconds-per-quarter.
func (m *Map) msPerTick(microsPerQuarter int) float64 {
	return float64(microsPerQuarter) / 1000.0 / float64(m.resolution)
}

// MsOfTick walks the tempo map segment by segment, accumulating elapsed
// milliseconds up to tick.
func (m *Map) MsOfTick(tick int) float64 {
	return m.MsOfTickFrom(0, 0, tick)
}

// MsOfTickFrom is the anchored variant of MsOfTick: the walk starts at
// anchorTick whose absolute time anchorMs is already known. Render code calls
// the conversion once per pixel; feeding the previous result back in keeps a
// full-file sweep linear instead of quadratic.
func (m *Map) MsOfTickFrom(anchorTick int, anchorMs float64, tick int) float64 {
	ms := anchorMs
	at := anchorTick
	// Index of the tempo entry in force at the anchor.
	seg := m.segmentIndex(at)
	for at < tick {
		rate := m.msPerTick(m.tempoAt(seg))
		next := tick
		if seg+1 < len(m.tempos) && m.tempos[seg+1].Tick < next {
			next = m.tempos[seg+1].Tick
		}
		if next > at {
			ms += float64(next-at) * rate
			at = next
		}
		if seg+1 < len(m.tempos) && at >= m.tempos[seg+1].Tick {
			seg++
		}
	}
	if tick < anchorTick {
		// Walking backwards only happens for queries before the anchor;
		// restart from zero rather than complicating the forward walk.
		return m.MsOfTickFrom(0, 0, tick)
	}
	return ms
}

// segmentIndex returns the index of the tempo entry in force at tick, or -1
// when tick precedes the first entry.
func (m *Map) segmentIndex(tick int) int {
	seg := -1
	for i := range m.tempos {
		if m.tempos[i].Tick <= tick {
			seg = i
		} else {
			break
		}
	}
	return seg
}

// TickOfMs inverts MsOfTick: it walks tempo segments converting each to a
// millisecond duration until ms falls inside one, then interpolates linearly
// with that segment's ticks-per-ms rate.
func (m *Map) TickOfMs(ms float64) int {
	if ms <= 0 {
		// Before tick zero: extrapolate with the first segment's rate.
		rate := m.msPerTick(m.tempoAt(0))
		return int(ms / rate)
	}
	elapsed := 0.0
	at := 0
	seg := m.segmentIndex(0)
	for {
		rate := m.msPerTick(m.tempoAt(seg))
		segEnd := -1
		if seg+1 < len(m.tempos) {
			segEnd = m.tempos[seg+1].Tick
		}
		if segEnd < 0 {
			return at + int((ms-elapsed)/rate)
		}
		segMs := float64(segEnd-at) * rate
		if elapsed+segMs > ms {
			return at + int((ms-elapsed)/rate)
		}
		elapsed += segMs
		at = segEnd
		seg++
	}
}

// TicksPerMeasure computes resolution * 4 * num / 2^denomPow. A degenerate
// signature (zero numerator, or a denominator power large enough to zero the
// product) comes straight from a loadable file, so it falls back to one 4/4
// measure instead of poisoning the measure walk with a zero span.
func (m *Map) TicksPerMeasure(num, denomPow uint8) int {
	tpm := m.resolution * 4 * int(num) >> int(denomPow)
	if tpm <= 0 {
		return m.resolution * 4
	}
	return tpm
}

// Measure walks the time-signature map and returns the 0-based measure index
// containing tick together with the ticks bounding that measure. A signature
// change that lands mid-measure cuts the measure short and starts measure
// counting fresh at its own tick.
func (m *Map) Measure(tick int) (index, startTick, endTick int) {
	num, denomPow := uint8(4), uint8(2)
	sigTick := 0
	measureBase := 0
	i := 0
	if len(m.sigs) > 0 && m.sigs[0].Tick <= 0 {
		num, denomPow = m.sigs[0].Num, m.sigs[0].DenomPow
		i = 1
	}
	for ; i < len(m.sigs) && m.sigs[i].Tick <= tick; i++ {
		span := m.sigs[i].Tick - sigTick
		tpm := m.TicksPerMeasure(num, denomPow)
		full := span / tpm
		if span%tpm != 0 {
			// The boundary does not land on a measure line: the trailing
			// partial measure still counts as one.
			full++
		}
		measureBase += full
		sigTick = m.sigs[i].Tick
		num, denomPow = m.sigs[i].Num, m.sigs[i].DenomPow
	}
	tpm := m.TicksPerMeasure(num, denomPow)
	within := (tick - sigTick) / tpm
	index = measureBase + within
	startTick = sigTick + within*tpm
	endTick = startTick + tpm
	// Clip the measure end at the next signature change.
	if i < len(m.sigs) && m.sigs[i].Tick < endTick {
		endTick = m.sigs[i].Tick
	}
	return index, startTick, endTick
}

// SignatureAt returns the time signature in force at tick.
func (m *Map) SignatureAt(tick int) (num, denomPow uint8) {
	num, denomPow = 4, 2
	for i := range m.sigs {
		if m.sigs[i].Tick <= tick {
			num, denomPow = m.sigs[i].Num, m.sigs[i].DenomPow
		} else {
			break
		}
	}
	return num, denomPow
}

// TempoAt returns the microseconds-per-quarter in force at tick.
func (m *Map) TempoAt(tick int) int {
	return m.tempoAt(m.segmentIndex(tick))
}
