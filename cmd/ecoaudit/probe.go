package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/ecoaudit/internal/cdp"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the browser's debugger endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := cdp.Probe(cmd.Context(), root.cfg.CDPURL())
			if err != nil {
				return err
			}
			printKV(os.Stdout,
				"Endpoint", root.cfg.CDPURL(),
				"Product", v.Product,
				"Protocol", v.ProtocolVersion,
				"V8", v.JSVersion,
			)
			_, err = fmt.Fprintln(os.Stdout)
			return err
		},
	}
}
