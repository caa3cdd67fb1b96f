package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters driver

	"github.com/quaverhq/quaver/doc"
	"github.com/quaverhq/quaver/player"
)

var playPort int
var playFromTick int

func init() {
	playCmd.Flags().IntVar(&playPort, "port", 0, "MIDI output port number")
	playCmd.Flags().IntVar(&playFromTick, "from", 0, "tick to start playback at")
	rootCmd.AddCommand(playCmd)
}

var playCmd = &cobra.Command{
	Use:   "play <file.mid>",
	Short: "Plays a MIDI file on a system output port",
	Long:  `Plays a MIDI file on a system output port`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer midi.CloseDriver()

		d, notes, err := doc.FromFile(args[0])
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Printf("repaired: %v\n", n)
		}

		out, err := midi.OutPort(playPort)
		if err != nil {
			return err
		}
		send, err := midi.SendTo(out)
		if err != nil {
			return err
		}

		p := player.New(send)
		if err := p.Start(d, playFromTick); err != nil {
			return err
		}
		p.Wait()
		return nil
	},
}
