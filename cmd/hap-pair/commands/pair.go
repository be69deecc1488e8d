package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

func pairCmd(a *app) *cobra.Command {
	var (
		pin  string
		addr string
		id   string
	)
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Run pair-setup with an accessory and store the pairing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" && id == "" {
				return errors.New("either --addr or --id is required")
			}
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			target, err := a.resolveAddr(cmd.Context(), id, addr)
			if err != nil {
				return err
			}

			p, err := ctrl.Pair(cmd.Context(), target, []byte(pin))
			if err != nil {
				return err
			}
			printf(cmd, "Paired with %s at %s\n", p.Accessory.ID, target)
			printf(cmd, "Accessory key: %s\n", p.Accessory.PublicKeyHex())
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "setup code shown by the accessory")
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port")
	cmd.Flags().StringVar(&id, "id", "", "accessory identifier to discover when --addr is not given")
	_ = cmd.MarkFlagRequired("pin")
	return cmd
}
