package main

import (
	"os"

	"ai-speech-session-service/cmd/speech-session/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
