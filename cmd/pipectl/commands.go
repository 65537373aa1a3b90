package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/audio-pipeline/internal/worker"
	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

const (
	defaultSubjectPrefix = "audio.pipeline"
	defaultTimeout       = 5 * time.Minute
	envNATSURL           = "NATS_URL"
	envUserID            = "PIPECTL_USER"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	natsURL       string
	subjectPrefix string
	timeout       time.Duration
	userID        string
}

// connect opens a NATS connection; callers close it with the returned func.
func (o *rootOptions) connect() (*pipelineClient, func(), error) {
	natsConnection, err := nats.Connect(o.natsURL, nats.Name("pipectl"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", o.natsURL, err)
	}

	client := &pipelineClient{
		natsConnection: natsConnection,
		subjects:       subjectsFor(o.subjectPrefix),
		timeout:        o.timeout,
	}

	return client, natsConnection.Close, nil
}

func (o *rootOptions) header() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     o.userID,
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pipectl",
		Short: "Command line client for the audio pipeline service",
		Long: `pipectl sends work to a running audio-pipeline service over NATS.

Examples:
  # Remove background noise from a recording
  pipectl denoise interview.wav

  # Speak a line as one of the character voices
  pipectl tts --text "Once upon a time" --character grandma --engine online

  # Translate English speech to Hindi and fetch the result
  pipectl translate speech.mp3 --from en --to hi
  pipectl fetch /audio_output/translated_abc.mp3 -o hindi.mp3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.natsURL, "nats-url", natsURL, "NATS server URL (env "+envNATSURL+")")
	flags.StringVar(&opts.subjectPrefix, "subject-prefix", defaultSubjectPrefix, "prefix of the service subjects")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "how long to wait for a reply")
	flags.StringVar(&opts.userID, "user", os.Getenv(envUserID), "user ID recorded in the request header")

	rootCmd.AddCommand(
		newDenoiseCmd(opts),
		newTranslateCmd(opts),
		newTTSCmd(opts),
		newCloneCmd(opts),
		newListingCmd(opts, "languages", "List the languages translation accepts"),
		newListingCmd(opts, "characters", "List the character voices"),
		newFetchCmd(opts),
	)

	return rootCmd
}

func newDenoiseCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "denoise FILE",
		Short: "Remove background noise from an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readUpload(args[0])
			if err != nil {
				return err
			}

			return runAndPrint(cmd, opts, worker.RunRequest{Mode: string(core.ModeDenoise), Upload: upload})
		},
	}
}

func newTranslateCmd(opts *rootOptions) *cobra.Command {
	var (
		sourceLang  string
		targetLang  string
		voiceOption int
	)

	cmd := &cobra.Command{
		Use:   "translate FILE",
		Short: "Translate speech into another language and speak it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readUpload(args[0])
			if err != nil {
				return err
			}

			return runAndPrint(cmd, opts, worker.RunRequest{
				Mode:        string(core.ModeTranslate),
				Upload:      upload,
				SourceLang:  sourceLang,
				TargetLang:  targetLang,
				VoiceOption: &voiceOption,
			})
		},
	}

	cmd.Flags().StringVar(&sourceLang, "from", worker.DefaultSourceLang, "language spoken in the recording")
	cmd.Flags().StringVar(&targetLang, "to", worker.DefaultTargetLang, "language to translate into")
	cmd.Flags().IntVar(&voiceOption, "voice", worker.DefaultVoiceOption, "voice preset of the translated speech (1-4)")

	return cmd
}

func newTTSCmd(opts *rootOptions) *cobra.Command {
	var (
		text      string
		character string
		engine    string
	)

	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Speak text with a character voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAndPrint(cmd, opts, worker.RunRequest{
				Mode:         string(core.ModeTextToSpeech),
				Text:         text,
				CharacterKey: character,
				Engine:       engine,
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to speak")
	cmd.Flags().StringVar(&character, "character", "", "character voice key (service default when empty)")
	cmd.Flags().StringVar(&engine, "engine", string(core.EngineOffline), "offline or online")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func newCloneCmd(opts *rootOptions) *cobra.Command {
	var (
		text string
		name string
	)

	cmd := &cobra.Command{
		Use:   "clone SAMPLE",
		Short: "Speak text in the voice of a reference sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upload, err := readUpload(args[0])
			if err != nil {
				return err
			}

			return runAndPrint(cmd, opts, worker.RunRequest{
				Mode:      string(core.ModeCloneVoice),
				Upload:    upload,
				Text:      text,
				CloneName: name,
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "text to speak (service default when empty)")
	cmd.Flags().StringVar(&name, "name", "", "label used in the output file name")

	return cmd
}

func newListingCmd(opts *rootOptions, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeConn, err := opts.connect()
			if err != nil {
				return err
			}
			defer closeConn()

			subject := client.subjects.Languages
			if name == "characters" {
				subject = client.subjects.Characters
			}

			response, err := client.listing(subject)
			if err != nil {
				return err
			}

			if !response.Success && response.Error != nil {
				return failureError(response.Error)
			}

			return printJSON(cmd.OutOrStdout(), response.Data)
		},
	}
}

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch REFERENCE",
		Short: "Download a result artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := opts.connect()
			if err != nil {
				return err
			}
			defer closeConn()

			data, err := client.fetch(args[0])
			if err != nil {
				return err
			}

			target := output
			if target == "" {
				target = path.Base(args[0])
			}

			err = os.WriteFile(filepath.Clean(target), data, 0o600)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes to %s\n", len(data), target)

			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (defaults to the artifact name)")

	return cmd
}

// runAndPrint sends one run request and prints the reply. A failed run is
// printed too and then returned as an error.
func runAndPrint(cmd *cobra.Command, opts *rootOptions, request worker.RunRequest) error {
	client, closeConn, err := opts.connect()
	if err != nil {
		return err
	}
	defer closeConn()

	request.Header = opts.header()

	reply, err := client.run(request)
	if err != nil {
		return err
	}

	printErr := printJSON(cmd.OutOrStdout(), reply)
	if printErr != nil {
		return printErr
	}

	if !reply.Success && reply.Error != nil {
		return failureError(reply.Error)
	}

	return nil
}

func printJSON(out io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = fmt.Fprintln(out, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}
