// Command choicerec recognizes which of a fixed set of candidate answers a
// speaker chose. It streams audio into a speech engine, or replays recorded
// recognizer events, and writes the recognition events as JSON lines.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "choicerec: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "choicerec",
		Short: "choicerec recognizes spoken answers to a fixed set of choices",
		Long: `choicerec decides which of the configured candidate answers was spoken.

It compiles the candidate phrases into a sliced grammar, streams audio into a
free-form speech engine (or replays recorded recognizer events), repairs
partial results against the grammar and elevates the best partial hypothesis
when the engine gives up or settles on a weak result.

Recognition events are written to recognition.output as JSON lines.`,
		Example: `  choicerec serve --config config.yaml
  choicerec replay events.jsonl -o results.jsonl
  choicerec grammar --format srgs
  choicerec validate`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newReplayCmd(&cfgPath),
		newGrammarCmd(&cfgPath),
		newValidateCmd(&cfgPath),
	)
	return root
}
