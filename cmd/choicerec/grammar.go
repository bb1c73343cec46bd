package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/choicerec/internal/config"
	"github.com/MrWong99/choicerec/pkg/grammar"
)

func newGrammarCmd(cfgPath *string) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "grammar",
		Short: "Print the compiled grammar of the configured choices",
		Long: `grammar compiles the configured choices and prints the SRGS grammar handed
to grammar-capable engines, or the keyword hints used by the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, art, err := compileConfig(*cfgPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "srgs":
				_, err = out.Write(append(art.SRGS, '\n'))
				return err
			case "keywords":
				for _, k := range art.Keywords {
					fmt.Fprintf(out, "%s\t%s\n", k.Keyword, strconv.FormatFloat(k.Boost, 'f', -1, 64))
				}
				return nil
			case "phrases":
				for p := range g.Len() {
					fmt.Fprintf(out, "%d\t%s\n", g.Mapper()[p], g.Phrase(p))
				}
				return nil
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(art.Keywords)
			}
			return fmt.Errorf("unknown format %q; valid values: srgs, keywords, phrases, json", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "srgs", "output format: srgs, keywords, phrases or json")
	return cmd
}

func newValidateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the candidate set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, art, err := compileConfig(*cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d choices, %d phrases, %d slices, %d keywords (%s)\n",
				g.Choices().Len(), g.Len(), len(g.Slices()), len(art.Keywords), art.Locale)
			return nil
		},
	}
}

func compileConfig(path string) (*grammar.Sliced, *grammar.Artifact, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := cfg.Choices.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("choices: %w", err)
	}
	g, err := grammar.New(c)
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: %w", err)
	}
	art, err := g.Compile()
	if err != nil {
		return nil, nil, fmt.Errorf("grammar: %w", err)
	}
	return g, art, nil
}
