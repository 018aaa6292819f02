package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muyun12/iceproxy/bootstrap"
	"github.com/muyun12/iceproxy/internal/config"
	"github.com/muyun12/iceproxy/internal/invocation"
	"github.com/muyun12/iceproxy/internal/reference"
	"github.com/muyun12/iceproxy/internal/retry"
)

func newInvokeCmd() *cobra.Command {
	var transportName string
	var insecureSkipVerify bool
	var timeout time.Duration
	var opMode string
	var data string
	var noRetry bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "invoke <stringified-proxy> <operation>",
		Short: "Send a single generic invocation, retrying per the operation mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			binder, err := resolveBinder(transportName, insecureSkipVerify)
			if err != nil {
				return err
			}
			p, err := bootstrap.Parse(args[0], binder)
			if err != nil {
				return err
			}
			p.Reference().SetLogger(newLogger())

			mode, err := parseOperationMode(opMode)
			if err != nil {
				return err
			}

			cfg := config.Default()
			if configPath != "" {
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}

			policy := retry.PolicyFromConfig(cfg.Retry)
			if noRetry {
				policy.MaxAttempts = 0
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := invocation.Invoke(ctx, p, args[1], mode, []byte(data), policy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok=%v results=%q\n", result.OK, string(result.Results))
			return nil
		},
	}
	cmd.Flags().StringVar(&transportName, "transport", "grpc", "transport to bind through: grpc or quic")
	cmd.Flags().BoolVar(&insecureSkipVerify, "insecure-skip-verify", false, "skip TLS verification (quic transport only)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&opMode, "op-mode", "normal", "operation mode: normal, nonmutating, idempotent")
	cmd.Flags().StringVar(&data, "data", "", "raw parameter encapsulation to send")
	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "disable automatic retry")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a runtime config file governing the retry policy")
	return cmd
}

func parseOperationMode(s string) (reference.OperationMode, error) {
	switch s {
	case "normal", "":
		return reference.Normal, nil
	case "nonmutating":
		return reference.Nonmutating, nil
	case "idempotent":
		return reference.Idempotent, nil
	default:
		return 0, fmt.Errorf("unknown operation mode %q, want normal, nonmutating, or idempotent", s)
	}
}
