package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muyun12/iceproxy/bootstrap"
	"github.com/muyun12/iceproxy/internal/config"
	"github.com/muyun12/iceproxy/internal/identity"
	"github.com/muyun12/iceproxy/internal/reference"
)

func newStringifyCmd() *cobra.Command {
	var category string
	var facet string
	var oneway bool
	var adapterID string
	var host string
	var port int
	var configPath string

	cmd := &cobra.Command{
		Use:   "stringify <name>",
		Short: "Build a proxy from flags and print its stringified form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.New(args[0], category)
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

			p, err := bootstrap.NewProxy(id, nil, cfg, newLogger())
			if err != nil {
				return err
			}
			if facet != "" {
				p = p.WithFacet(facet)
			}
			if oneway {
				p = p.Oneway()
			}
			if adapterID != "" {
				p = p.WithAdapterID(adapterID)
			}
			if host != "" {
				p = p.WithEndpoints([]reference.Endpoint{{Transport: "grpc", Host: host, Port: port}})
			}
			fmt.Fprintln(cmd.OutOrStdout(), bootstrap.Format(p))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "identity category")
	cmd.Flags().StringVar(&facet, "facet", "", "target facet")
	cmd.Flags().BoolVar(&oneway, "oneway", false, "bind to oneway mode")
	cmd.Flags().StringVar(&adapterID, "adapter-id", "", "resolve indirectly through this adapter id")
	cmd.Flags().StringVar(&host, "host", "", "direct endpoint host")
	cmd.Flags().IntVar(&port, "port", 4061, "direct endpoint port")
	cmd.Flags().StringVar(&configPath, "config", "", "path to a runtime config file governing proxy defaults")
	return cmd
}
