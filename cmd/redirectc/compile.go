package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"edge-redirector/internal/compiler"
)

type compileOutput struct {
	Snippets   []compiler.Snippet `json:"snippets" yaml:"snippets"`
	Duplicates []string           `json:"duplicates" yaml:"duplicates"`
	Warnings   []compiler.Warning `json:"warnings" yaml:"warnings"`
}

func newCompileCmd() *cobra.Command {
	var opts rulesOptions
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a rule file and print the VCL snippets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, &opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runCompile(cmd *cobra.Command, opts *rulesOptions) error {
	res, err := opts.compile(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != outputText {
		result := compileOutput{
			Snippets:   res.Artifacts.Snippets(),
			Duplicates: res.Duplicates,
			Warnings:   res.Warnings,
		}
		if result.Duplicates == nil {
			result.Duplicates = []string{}
		}
		if result.Warnings == nil {
			result.Warnings = []compiler.Warning{}
		}
		return encode(out, opts.output, result)
	}

	writeReport(cmd, res)
	for _, s := range res.Artifacts.Snippets() {
		if _, err := fmt.Fprintf(out, "# snippet %s (%s)\n%s\n", s.Name, s.Type, s.Content); err != nil {
			return err
		}
	}
	return nil
}
