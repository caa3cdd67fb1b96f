package cmd

import (
	"fmt"

	"github.com/quaverhq/quaver/doc"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resaveCmd)
}

// resave loads a file through the repairing parser and writes it back out,
// which normalizes running status and fixes orphaned notes in place.
var resaveCmd = &cobra.Command{
	Use:   "resave <file.mid>...",
	Short: "Loads and rewrites MIDI files, repairing note pairing",
	Long:  `Loads and rewrites MIDI files, repairing note pairing`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			d, notes, err := doc.FromFile(path)
			if err != nil {
				return err
			}
			for _, n := range notes {
				fmt.Printf("%v: %v\n", path, n)
			}
			if err := d.Save(path); err != nil {
				return err
			}
		}
		return nil
	},
}
