package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muyun12/iceproxy/bootstrap"
)

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <stringified-proxy>",
		Short: "Parse a stringified proxy and print its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := bootstrap.Parse(args[0], nil)
			if err != nil {
				return err
			}
			ref := p.Reference()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "identity:  %s\n", ref.Identity())
			fmt.Fprintf(out, "facet:     %q\n", ref.Facet())
			fmt.Fprintf(out, "mode:      %s\n", ref.Mode())
			fmt.Fprintf(out, "secure:    %v\n", ref.Secure())
			fmt.Fprintf(out, "encoding:  %s\n", ref.Encoding())
			if ref.AdapterID() != "" {
				fmt.Fprintf(out, "adapterID: %s\n", ref.AdapterID())
			}
			for _, ep := range ref.Endpoints() {
				fmt.Fprintf(out, "endpoint:  %s\n", ep)
			}
			fmt.Fprintf(out, "timeout:              %d\n", ref.Timeout())
			fmt.Fprintf(out, "invocationTimeout:    %d\n", ref.InvocationTimeout())
			fmt.Fprintf(out, "locatorCacheTimeout:  %d\n", ref.LocatorCacheTimeout())
			if id := ref.ConnectionID(); id != "" {
				fmt.Fprintf(out, "connectionID:         %s\n", id)
			}
			if compress, ok := ref.Compress(); ok {
				fmt.Fprintf(out, "compress:             %v\n", compress)
			}
			return nil
		},
	}
	return cmd
}
