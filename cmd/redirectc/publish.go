package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"edge-redirector/internal/app"
	"edge-redirector/internal/config"
)

// APIKeyEnv names the variable holding the Fastly API token.
const APIKeyEnv = "FASTLY_API_KEY"

type publishOptions struct {
	rulesOptions
	serviceID string
}

func newPublishCmd() *cobra.Command {
	var opts publishOptions
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Compile a rule file and activate it on a Fastly service",
		Long: "Compile a rule file, upload the snippets to a clone of the active version of the\n" +
			"service and activate the clone. The API token is read from " + APIKeyEnv + ".\n" +
			"When REDIS_ADDRESS is set the publish takes the same distributed lock as the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, &opts)
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&opts.serviceID, "service", "", "Fastly service id")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func runPublish(cmd *cobra.Command, opts *publishOptions) error {
	key := os.Getenv(APIKeyEnv)
	if key == "" {
		return fmt.Errorf("%s must be set", APIKeyEnv)
	}

	res, err := opts.compile(cmd)
	if err != nil {
		return err
	}
	writeReport(cmd, res)

	if err := opts.setupLogger(cmd); err != nil {
		return err
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	publishing, err := app.NewPublishing(cfg)
	if err != nil {
		return err
	}
	defer publishing.Cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := publishing.Publisher.Publish(ctx, opts.serviceID, key, res.Artifacts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != outputText {
		return encode(out, opts.output, result)
	}
	_, err = fmt.Fprintf(out, "service %s: version %d cloned from %d and activated\n",
		result.ServiceID, result.Version, result.ClonedFrom)
	return err
}
