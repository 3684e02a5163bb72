// ABOUTME: Root command, global flags and shared setup for every subcommand
// ABOUTME: Loads .env, resolves configuration and builds the structured logger before any command runs
package commands

import (
	"fmt"
	"io"

	"github.com/harper/ragchat/internal/config"
	"github.com/harper/ragchat/internal/logging"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
	configPath   string

	cfg    *config.Config
	logger = zerolog.Nop()
)

const skipConfigAnnotation = "ragchat/skip-config"

const banner = `
██████   █████   ██████   ██████ ██   ██  █████  ████████
██   ██ ██   ██ ██       ██      ██   ██ ██   ██    ██
██████  ███████ ██   ███ ██      ███████ ███████    ██
██   ██ ██   ██ ██    ██ ██      ██   ██ ██   ██    ██
██   ██ ██   ██  ██████   ██████ ██   ██ ██   ██    ██
`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragchat",
		Short: "Retrieval-augmented chat with streaming answers and speech",
		Long: banner + `
Chat with a local or cloud language model whose answers are grounded in
your own documents. Each turn embeds your question, pulls the most relevant
knowledge chunks (re-ranked by their weight), streams the answer as it is
generated and can read it aloud.

Configuration comes from ~/.config/ragchat/config.yaml, RAGCHAT_* environment
variables and a .env file in the working directory.`,
		Version:           build.Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
	cmd.SetVersionTemplate(build.line() + "\n")

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, text or json")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/ragchat/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewChatCmd(),
		NewAskCmd(),
		NewIngestCmd(),
		NewAddCmd(),
		NewSearchCmd(),
		NewClearCmd(),
		NewHistoryCmd(),
		NewSayCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	// .env is optional
	_ = godotenv.Load()

	switch outputFormat {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("--format must be auto, text or json, got %q", outputFormat)
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		loaded.Log.Level = "debug"
	} else if quiet {
		loaded.Log.Level = "error"
	}

	l, err := logging.New(logging.Options{
		Level:  loaded.Log.Level,
		Format: loaded.Log.Format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	cfg = loaded
	logger = l
	return nil
}

// jsonOutput reports whether results should be printed as JSON
func jsonOutput() bool {
	return outputFormat == "json"
}

// info prints progress messages unless --quiet is set
func info(w io.Writer, format string, a ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(w, format, a...)
}
