package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ai-speech-session-service/internal/service/audio/portaudio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := portaudio.ListInputDevices()
	if err != nil {
		printError("could not list devices", err)
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No input devices found")
		return nil
	}

	fmt.Println("Input devices:")
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %-40s %d ch  %.0f Hz\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
	}
	return nil
}
