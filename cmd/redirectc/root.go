package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"edge-redirector/internal/common/logging"
	"edge-redirector/internal/compiler"
	"edge-redirector/internal/rules"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// rulesOptions are the flags shared by every command that reads a rule file.
type rulesOptions struct {
	file     string
	format   string
	output   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "redirectc",
		Short:         "Compile edge redirect rules into Fastly VCL snippets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
	}
	root.AddCommand(newCompileCmd(), newResolveCmd(), newPublishCmd())
	return root
}

func (o *rulesOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.file, "file", "f", "", "rules file (json or csv), - for stdin")
	fs.StringVar(&o.format, "format", "", "rules format: json or csv (default from the file extension)")
	fs.StringVarP(&o.output, "output", "o", outputText, "output: text, json or yaml")
	fs.StringVar(&o.logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	_ = cmd.MarkFlagRequired("file")
}

func (o *rulesOptions) validate() error {
	switch o.output {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("--output must be one of %s, %s, %s", outputText, outputJSON, outputYAML)
	}
}

// resolvedFormat is --format when set, otherwise derived from the file extension.
func (o *rulesOptions) resolvedFormat() string {
	if o.format != "" {
		return strings.ToLower(o.format)
	}
	if strings.EqualFold(filepath.Ext(o.file), ".csv") {
		return rules.FormatCSV
	}
	return rules.FormatJSON
}

func (o *rulesOptions) compile(cmd *cobra.Command) (*compiler.Result, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	var (
		payload []byte
		err     error
	)
	if o.file == "-" {
		payload, err = io.ReadAll(cmd.InOrStdin())
	} else {
		payload, err = os.ReadFile(o.file)
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	return compiler.CompilePayload(o.resolvedFormat(), payload)
}

// setupLogger sends diagnostics to stderr so stdout only carries command output.
func (o *rulesOptions) setupLogger(cmd *cobra.Command) error {
	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(o.logLevel),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	logging.SetGlobalLogger(logger)
	return nil
}

// writeReport prints the duplicate and warning lines of res to stderr.
func writeReport(cmd *cobra.Command, res *compiler.Result) {
	if report := res.Report(); report != "" {
		fmt.Fprint(cmd.ErrOrStderr(), report)
	}
}

func encode(w io.Writer, output string, v interface{}) error {
	switch output {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}
