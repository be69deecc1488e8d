package commands

import (
	"context"
	"fmt"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/store"
	"github.com/spf13/cobra"
)

func unpairCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "unpair <accessory-id>",
		Short: "Remove this controller from an accessory and forget it",
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
			if err := ctrl.Unpair(cmd.Context(), args[0], target); err != nil {
				return err
			}
			printf(cmd, "Unpaired %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port (default: stored or discovered)")
	return cmd
}

// addressFor returns addr, the stored address of the accessory, or a
// discovered one, in that order.
func (a *app) addressFor(ctx context.Context, ctrl *controller.Controller, id, addr string) (string, error) {
	if addr != "" {
		return addr, nil
	}
	pairings, err := ctrl.Pairings()
	if err != nil {
		return "", err
	}
	for _, p := range pairings {
		if p.Accessory.ID != id {
			continue
		}
		if p.Address != "" {
			return p.Address, nil
		}
		return a.resolveAddr(ctx, id, "")
	}
	return "", fmt.Errorf("accessory %s: %w", id, store.ErrNotFound)
}
