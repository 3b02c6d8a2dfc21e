package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"reportanalyzer/internal/app"
	"reportanalyzer/internal/pipeline"
)

func newAnalyzeCmd() *cobra.Command {
	var file, title string
	cmd := &cobra.Command{
		Use:   "analyze [text...]",
		Short: "Run the full analysis for one report",
		Long: `Classify a report, answer the questions of every matched incident type
and write the final report. The text is taken from --file, from the
arguments, or from stdin when neither is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readReport(cmd.InOrStdin(), file, args)
			if err != nil {
				return err
			}
			cfg, log, restore, err := setup()
			if err != nil {
				return err
			}
			defer restore()

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Pipeline.Analyze(cmd.Context(), pipeline.Request{Text: text, Title: title, Source: "cli"})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&file, "file", "f", "", "Read the report text from this file")
	f.StringVar(&title, "title", "", "Report title")
	return cmd
}

func readReport(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", file)
		}
		return string(raw), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		if strings.TrimSpace(string(raw)) == "" {
			return "", fmt.Errorf("no report text: pass --file, arguments or stdin")
		}
		return string(raw), nil
	}
}
