// Package main provides pipectl, the command line client of the audio pipeline.
//
// Usage:
//
//	pipectl [flags] <command> [args]
//
// Commands:
//
//	denoise     - Remove background noise from a recording
//	translate   - Translate speech and speak it in another language
//	tts         - Speak text with a character voice
//	clone       - Speak text in the voice of a reference sample
//	languages   - List translation languages
//	characters  - List character voices
//	fetch       - Download a result artifact
//
// NATS_URL and PIPECTL_USER are read from the environment or a local .env file.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
