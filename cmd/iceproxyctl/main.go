// Command iceproxyctl is a small operator tool for exercising the proxy
// core directly: parse and reformat stringified proxies, ping a remote
// object, or fire a single generic invocation, all without writing any Go.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/muyun12/iceproxy/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "iceproxyctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "iceproxyctl",
		Short: "Inspect and exercise iceproxy proxies from the command line",
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	root.AddCommand(
		newPingCmd(),
		newInvokeCmd(),
		newStringifyCmd(),
		newParseCmd(),
	)
	return root
}

func newLogger() *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(logLevel),
		Format: logging.ParseFormat(logFormat),
		Output: os.Stderr,
	})
}
