package cmd

import (
	"fmt"

	"github.com/quaverhq/quaver/doc"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "Dumps every event in a MIDI file",
	Long:  `Dumps every event in a MIDI file`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(args[0])
	},
}

func inspect(path string) error {
	d, notes, err := doc.FromFile(path)
	if err != nil {
		return err
	}
	for _, n := range notes {
		fmt.Printf("note: %v\n", n)
	}
	fmt.Printf("resolution: %v\n", d.Resolution())
	for _, t := range d.Tracks() {
		fmt.Printf("track %v %q end=%v\n", t.ID(), t.Name, t.EndTick())
	}
	for i := 0; i < doc.NumChannels; i++ {
		c := d.Channel(i)
		if c.IsEmpty() {
			continue
		}
		fmt.Printf("channel %v (%v events):\n", i, c.Len())
		for _, ev := range c.Events() {
			fmt.Printf("  track=%v %v\n", ev.Track, ev)
		}
	}
	return nil
}
