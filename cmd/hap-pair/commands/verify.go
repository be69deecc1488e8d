package commands

import (
	"github.com/spf13/cobra"
)

func verifyCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "verify <accessory-id>",
		Short: "Run pair-verify and open an encrypted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			target, err := a.addressFor(cmd.Context(), ctrl, args[0], addr)
			if err != nil {
				return err
			}
			conn, err := ctrl.Connect(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			defer conn.Close()

			printf(cmd, "Verified %s; encrypted session established\n", conn.Accessory().ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port (default: stored or discovered)")
	return cmd
}
