package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/kdl/internal/compiler"
)

// TokenInfo is one token as printed by the tokens command.
type TokenInfo struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// NewTokensCommand creates the tokens command.
func NewTokensCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <program>",
		Short: "Print the token stream of a program",
		Long: `Tokenize a program and print one token per line with its position.

Comments and whitespace produce no tokens. Token text excludes the
brackets of strings and variables and the '%' of percentages.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokens(rootOpts, args[0], cmd)
		},
	}
}

func runTokens(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	src, err := readProgram(path, cmd.InOrStdin())
	if err != nil {
		return programExitError(formatter, path, err)
	}

	toks, err := compiler.Tokenize(src)
	if err != nil {
		return parseExitError(formatter, err)
	}

	infos := make([]TokenInfo, len(toks))
	for i, tok := range toks {
		line, col := compiler.LineCol(src, tok.Pos)
		infos[i] = TokenInfo{Kind: tok.Kind.String(), Text: tok.Text, Line: line, Column: col}
	}

	if opts.Format == "json" {
		return formatter.Success(infos)
	}
	for _, info := range infos {
		fmt.Fprintf(formatter.Writer, "%d:%d\t%s %q\n", info.Line, info.Column, info.Kind, info.Text)
	}
	return nil
}
