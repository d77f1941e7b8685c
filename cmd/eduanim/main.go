package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-animation-pipeline/internal/logger"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "eduanim",
	Short: "Turn educational text into animated visuals",
	Long: `eduanim - Turn educational text into animated visuals.

Concepts are extracted from the text, each concept gets an image prompt,
an image and an animation. Settings are read from .env and the environment
(OPENAI_API_KEY, AWS_ACCESS_KEY, OUTPUT_DIR, ANIMATOR_URL, ...).

Examples:
  eduanim animate --text "The Sun warms the Earth and lights the Moon"
  eduanim animate --interest "black holes" --minutes 2 --json
  eduanim concepts --file lesson.txt --seed 7
  eduanim explore --interest astronomy --focus "the Moon"
  eduanim exec --payload '{"text":"The Sun","job":"animation"}'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logger.Initialize(logJSON, logLevel); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(animateCmd)
	rootCmd.AddCommand(conceptsCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(execCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
