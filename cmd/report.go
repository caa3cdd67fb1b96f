package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/event"
	"github.com/quaverhq/quaver/util"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report <file.mid|dir>...",
	Short: "Summarizes MIDI files",
	Long:  `Summarizes MIDI files. Directory arguments are walked recursively.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, arg := range args {
			paths := []string{arg}
			if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
				paths = util.GatherAllMidiPaths(arg, 0)
			}
			for _, path := range paths {
				if err := report(path); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

type fileReport struct {
	tracks      int
	perChannel  [16]int
	tempos      int
	sigs        int
	measures    int
	durationMs  float64
	maxTick     int
	repairNotes []string
}

func analyze(path string) (fileReport, error) {
	var r fileReport
	d, notes, err := doc.FromFile(path)
	if err != nil {
		return r, err
	}
	r.repairNotes = notes
	r.tracks = d.NumTracks()
	r.maxTick = d.MaxTick()
	r.durationMs = d.MsOfTick(r.maxTick)
	r.measures, _, _ = d.Measure(r.maxTick)
	for i := 0; i < 16; i++ {
		for _, ev := range d.Channel(i).Events() {
			if ev.Kind == event.NoteOn {
				r.perChannel[i]++
			}
		}
	}
	for _, ev := range d.Channel(doc.ChannelConductor).Events() {
		switch ev.Kind {
		case event.TempoChange:
			r.tempos++
		case event.TimeSignature:
			r.sigs++
		}
	}
	return r, nil
}

func report(path string) error {
	r, err := analyze(path)
	if err != nil {
		return err
	}
	fmt.Printf("%v:\n", path)
	for _, n := range r.repairNotes {
		fmt.Printf("  repaired: %v\n", n)
	}
	fmt.Printf("  tracks: %v\n", r.tracks)
	fmt.Printf("  notes: %v\n", util.Sum(r.perChannel[:]))
	for ch, n := range r.perChannel {
		if n > 0 {
			fmt.Printf("    channel %v: %v notes\n", ch, n)
		}
	}
	fmt.Printf("  tempo changes: %v, time signatures: %v\n", r.tempos, r.sigs)
	fmt.Printf("  length: %v ticks, %v measures, %v\n",
		r.maxTick, r.measures+1, time.Duration(r.durationMs)*time.Millisecond)
	return nil
}
