package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quaver",
	Short: "MIDI sequence toolbox",
	Long:  `Load, inspect, repair and play standard MIDI files.`,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
