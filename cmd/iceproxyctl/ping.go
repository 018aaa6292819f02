package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muyun12/iceproxy/bootstrap"
)

func newPingCmd() *cobra.Command {
	var transportName string
	var insecureSkipVerify bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping <stringified-proxy>",
		Short: "Verify a remote object exists and is reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			binder, err := resolveBinder(transportName, insecureSkipVerify)
			if err != nil {
				return err
			}
			p, err := bootstrap.Parse(args[0], binder)
			if err != nil {
				return err
			}
			p.Reference().SetLogger(logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			start := time.Now()
			if err := p.Ping(ctx); err != nil {
				logger.Error("ping failed", "proxy", args[0], "error", err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", time.Since(start))
			return nil
		},
	}
	cmd.Flags().StringVar(&transportName, "transport", "grpc", "transport to bind through: grpc or quic")
	cmd.Flags().BoolVar(&insecureSkipVerify, "insecure-skip-verify", false, "skip TLS verification (quic transport only)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}
