package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"edge-redirector/internal/resolver"
)

type resolveOptions struct {
	rulesOptions
	url    string
	cookie string
	at     int64
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which redirect a URL would receive at the edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, &opts)
		},
	}
	opts.bind(cmd)
	fs := cmd.Flags()
	fs.StringVar(&opts.url, "url", "", "absolute request URL")
	fs.StringVar(&opts.cookie, "cookie", "", "Cookie header value sent with the request")
	fs.Int64Var(&opts.at, "at", 0, "evaluation time as unix seconds (default now)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func runResolve(cmd *cobra.Command, opts *resolveOptions) error {
	now := time.Now()
	if opts.at > 0 {
		now = time.Unix(opts.at, 0)
	}

	req, err := resolver.NewRequest(opts.url, now)
	if err != nil {
		return err
	}
	if req, err = req.WithCookieHeader(opts.cookie); err != nil {
		return err
	}

	res, err := opts.compile(cmd)
	if err != nil {
		return err
	}
	rv, err := resolver.New(res)
	if err != nil {
		return err
	}

	d := rv.Resolve(req)
	out := cmd.OutOrStdout()
	if opts.output != outputText {
		return encode(out, opts.output, d)
	}

	if !d.Matched {
		_, err = fmt.Fprintln(out, "no redirect")
		return err
	}
	_, err = fmt.Fprintf(out, "%d %s\nLocation: %s\nrule %s (%s)\n", d.StatusCode, d.Reason, d.Location, d.RuleID, d.Source)
	return err
}
