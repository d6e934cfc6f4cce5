package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/capture"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List camera devices that can be opened",
	RunE: func(cmd *cobra.Command, args []string) error {
		found := capture.ProbeDevices(nil, mustGetInt(cmd, "max"))
		if len(found) == 0 {
			fmt.Println("No cameras found")
			return nil
		}
		for _, id := range found {
			fmt.Printf("camera %d\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().Int("max", 4, "Number of device IDs to probe")
}
