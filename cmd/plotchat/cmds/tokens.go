package cmds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/plotchat/pkg/conversation"
	"github.com/go-go-golems/plotchat/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newCounter(model, codec string) (*tokens.Counter, error) {
	if codec == "" && model != "" {
		codec = tokens.EncodingForModel(model)
	}
	return tokens.NewCounter(codec)
}

type CountCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*CountCommand)(nil)

type CountSettings struct {
	Model      string `glazed:"model"`
	Codec      string `glazed:"codec"`
	Transcript bool   `glazed:"transcript"`
	Input      string `glazed:"input"`
}

func NewCountCommand() (*CountCommand, error) {
	return &CountCommand{
		CommandDescription: cmds.NewCommandDescription(
			"count",
			cmds.WithShort("Count the tokens of a file or a transcript"),
			cmds.WithFlags(
				fields.New(
					"model",
					fields.TypeString,
					fields.WithHelp("Model used to pick the encoding"),
				),
				fields.New(
					"codec",
					fields.TypeString,
					fields.WithHelp("Encoding (default cl100k_base)"),
				),
				fields.New(
					"transcript",
					fields.TypeBool,
					fields.WithHelp("Input is a JSON transcript; count what the backend would receive"),
					fields.WithDefault(false),
				),
			),
			cmds.WithArguments(
				fields.New(
					"input",
					fields.TypeStringFromFiles,
					fields.WithHelp("Input file, - for stdin"),
				),
			),
		),
	}, nil
}

func (c *CountCommand) RunIntoWriter(ctx context.Context, parsedValues *values.Values, w io.Writer) error {
	s := &CountSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	return countTokens(s, w)
}

func countTokens(s *CountSettings, w io.Writer) error {
	c, err := newCounter(s.Model, s.Codec)
	if err != nil {
		return err
	}

	var n int
	if s.Transcript {
		var entries []conversation.Entry
		if err := json.Unmarshal([]byte(s.Input), &entries); err != nil {
			return errors.Wrap(err, "input is not a JSON list of messages")
		}
		n, err = c.CountTranscript(entries)
	} else {
		n, err = c.Count(s.Input)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Encoding: %s\nTotal tokens: %d\n", c.Encoding(), n)
	if err != nil {
		return errors.Wrap(err, "error writing to output")
	}
	return nil
}

type EncodeCommand struct {
	*cmds.CommandDescription
}

var _ cmds.WriterCommand = (*EncodeCommand)(nil)

type EncodeSettings struct {
	Model string `glazed:"model"`
	Codec string `glazed:"codec"`
	Input string `glazed:"input"`
}

func NewEncodeCommand() (*EncodeCommand, error) {
	return &EncodeCommand{
		CommandDescription: cmds.NewCommandDescription(
			"encode",
			cmds.WithShort("Print the token ids of a file"),
			cmds.WithFlags(
				fields.New(
					"model",
					fields.TypeString,
					fields.WithHelp("Model used to pick the encoding"),
				),
				fields.New(
					"codec",
					fields.TypeString,
					fields.WithHelp("Encoding (default cl100k_base)"),
				),
			),
			cmds.WithArguments(
				fields.New(
					"input",
					fields.TypeStringFromFiles,
					fields.WithHelp("Input file, - for stdin"),
				),
			),
		),
	}, nil
}

func (e *EncodeCommand) RunIntoWriter(ctx context.Context, parsedValues *values.Values, w io.Writer) error {
	s := &EncodeSettings{}
	if err := parsedValues.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	return encodeTokens(s, w)
}

func encodeTokens(s *EncodeSettings, w io.Writer) error {
	c, err := newCounter(s.Model, s.Codec)
	if err != nil {
		return err
	}
	ids, err := c.Encode(s.Input)
	if err != nil {
		return err
	}

	textIds := make([]string, 0, len(ids))
	for _, id := range ids {
		textIds = append(textIds, strconv.FormatUint(uint64(id), 10))
	}
	_, err = fmt.Fprintln(w, strings.Join(textIds, " "))
	return err
}

func NewTokensCommand() *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Token counting helpers",
	}

	countCmd, err := NewCountCommand()
	cobra.CheckErr(err)
	command, err := cli.BuildCobraCommand(countCmd)
	cobra.CheckErr(err)
	tokensCmd.AddCommand(command)

	encodeCmd, err := NewEncodeCommand()
	cobra.CheckErr(err)
	command, err = cli.BuildCobraCommand(encodeCmd)
	cobra.CheckErr(err)
	tokensCmd.AddCommand(command)

	return tokensCmd
}
