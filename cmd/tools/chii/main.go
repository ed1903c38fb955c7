// Command chii 是回复解析与播放的调试工具。
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chobits/backend/internal/logging"
)

var (
	verbose bool
	timeout time.Duration
	logger  = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "chii",
	Short: "Chobits reply parser and playback tools",
	Long: `Offline tools for the companion reply pipeline.

Available subcommands:
  parse - Parse a raw model reply into trace, segments and clean text
  play  - Parse a reply and run it through the silent playback sequencer
  tts   - Synthesize text with the configured speech backend`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.Options{Level: level, Console: true, App: "chii"})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 45*time.Second, "Operation timeout")

	rootCmd.AddCommand(parseCmd, playCmd, ttsCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
