package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// textSource holds the flags that choose the input text
type textSource struct {
	text     string
	file     string
	interest string
	minutes  int
	focus    string
}

func (s *textSource) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.text, "text", "", "Educational text to process")
	cmd.Flags().StringVar(&s.file, "file", "", "Read the text from a file (- for stdin)")
	cmd.Flags().StringVar(&s.interest, "interest", "", "Generate the text about this interest")
	cmd.Flags().IntVar(&s.minutes, "minutes", 2, "Reading time of generated text, in minutes")
	cmd.Flags().StringVar(&s.focus, "focus", "", "Aspect of the interest to focus on (\"no\" to skip)")
}

type textExplorer interface {
	Explore(ctx context.Context, interest string, readMinutes int) (string, error)
	ExploreFocus(ctx context.Context, interest, focus string) (string, error)
}

// resolve returns the text to process: --text, then --file, then a generated exploration
func (s *textSource) resolve(ctx context.Context, explorer textExplorer) (string, error) {
	switch {
	case strings.TrimSpace(s.text) != "":
		return s.text, nil

	case s.file != "":
		var data []byte
		var err error
		if s.file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(s.file)
		}
		if err != nil {
			return "", errors.Wrap(err, "read text file")
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", errors.Newf("%s is empty", s.file)
		}
		return string(data), nil

	case strings.TrimSpace(s.interest) != "":
		text, err := explorer.Explore(ctx, s.interest, s.minutes)
		if err != nil {
			return "", err
		}
		if s.focus == "" {
			return text, nil
		}
		focused, err := explorer.ExploreFocus(ctx, s.interest, s.focus)
		if err != nil {
			return "", err
		}
		return text + "\n\n" + focused, nil
	}

	return "", errors.New("one of --text, --file or --interest is required")
}
