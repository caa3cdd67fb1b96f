package doc

import (
	"fmt"

	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/protocol"
)

// Bulk measure edits. Each operation is one protocol step covering every
// touched channel and every moved event, so undo is atomic and does not
// replay per-event steps.

// DeleteMeasures removes the measures fromMeasure..toMeasure (inclusive,
// 0-based): events inside the region are deleted together with their note
// partners, and every event at or after the region end shifts left by the
// region's tick span.
func (d *Document) DeleteMeasures(prot *protocol.Protocol, fromMeasure, toMeasure int) error {
	startTick, endTick, err := d.measureSpan(fromMeasure, toMeasure)
	if err != nil {
		return err
	}
	span := endTick - startTick
	prot.StartNewAction(fmt.Sprintf("Delete measures %d-%d", fromMeasure+1, toMeasure+1))
	defer prot.EndAction()

	// Deleting half of a note pair would orphan the other half, so a pair
	// with either end inside the region goes entirely.
	doomed := make(map[event.ID]bool)
	for _, c := range d.channels {
		for _, ev := range c.events {
			if ev.Tick >= startTick && ev.Tick < endTick {
				doomed[ev.ID] = true
				if ev.Partner != 0 {
					doomed[ev.Partner] = true
				}
			}
		}
	}
	for _, c := range d.channels {
		touched := false
		for _, ev := range c.events {
			if doomed[ev.ID] || ev.Tick >= endTick {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		oldC := c.SnapshotState()
		keep := c.events[:0:0]
		for _, ev := range c.events {
			if doomed[ev.ID] {
				continue
			}
			if ev.Tick >= endTick {
				oldE := ev.SnapshotState()
				ev.Tick -= span
				prot.Push(ev, oldE, ev.SnapshotState())
			}
			keep = append(keep, ev)
		}
		c.events = keep
		c.doc.noteMutation(c.num)
		prot.Push(c, oldC, c.SnapshotState())
	}
	return nil
}

// InsertMeasures opens count empty measures in front of measure atMeasure:
// every event at or after that measure's start shifts right by count times
// the measure span in force there.
func (d *Document) InsertMeasures(prot *protocol.Protocol, atMeasure, count int) error {
	if count <= 0 {
		return fmt.Errorf("doc: inserting %d measures", count)
	}
	startTick, endTick, err := d.measureSpan(atMeasure, atMeasure)
	if err != nil {
		return err
	}
	span := (endTick - startTick) * count
	prot.StartNewAction(fmt.Sprintf("Insert %d measures", count))
	defer prot.EndAction()
	for _, c := range d.channels {
		for _, ev := range c.events {
			if ev.Tick >= startTick {
				oldE := ev.SnapshotState()
				ev.Tick += span
				prot.Push(ev, oldE, ev.SnapshotState())
			}
		}
		// Ticks moved by a constant, so the index order is unchanged; only
		// the conductor-derived caches need refreshing.
		c.doc.noteMutation(c.num)
	}
	return nil
}

// measureSpan resolves a measure index range to its bounding ticks.
func (d *Document) measureSpan(fromMeasure, toMeasure int) (startTick, endTick int, err error) {
	if fromMeasure < 0 || toMeasure < fromMeasure {
		return 0, 0, fmt.Errorf("doc: bad measure range %d-%d", fromMeasure, toMeasure)
	}
	tm := d.TimeMap()
	tick := 0
	startTick = 0
	for {
		idx, mStart, mEnd := tm.Measure(tick)
		if idx == fromMeasure && startTick == 0 {
			startTick = mStart
		}
		if idx >= toMeasure {
			if idx > toMeasure {
				return 0, 0, fmt.Errorf("doc: measure walk overshot %d at %d", toMeasure, idx)
			}
			return startTick, mEnd, nil
		}
		tick = mEnd
	}
}
