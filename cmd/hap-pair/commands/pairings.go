package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/backkem/hap/pkg/pairing"
	"github.com/spf13/cobra"
)

func pairingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairings",
		Short: "Show and administer pairings",
	}
	cmd.AddCommand(pairingsListCmd(a), pairingsAddCmd(a), pairingsRemoveCmd(a))
	return cmd
}

func pairingsListCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "list [accessory-id]",
		Short: "List stored pairings, or the controllers paired with an accessory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := a.controller()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				pairings, err := ctrl.Pairings()
				if err != nil {
					return err
				}
				printf(cmd, "Device ID: %s\n", ctrl.DeviceID())
				for _, p := range pairings {
					printf(cmd, "%s  %s  %s\n", p.Accessory.ID, p.Accessory.PublicKeyHex(), p.Address)
				}
				return nil
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

			peers, err := conn.ListPairings(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range peers {
				self := ""
				if p.ID == ctrl.DeviceID() {
					self = " (this controller)"
				}
				printf(cmd, "%s  %s  %s%s\n", p.ID, p.PublicKeyHex(), p.Permissions, self)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port (default: stored or discovered)")
	return cmd
}

func pairingsAddCmd(a *app) *cobra.Command {
	var (
		addr  string
		admin bool
	)
	cmd := &cobra.Command{
		Use:   "add <accessory-id> <controller-id> <public-key-hex>",
		Short: "Add another controller to an accessory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := hex.DecodeString(args[2])
			if err != nil {
				return fmt.Errorf("invalid public key: %w", err)
			}
			peer := pairing.Peer{ID: args[1], PublicKey: key, Permissions: pairing.PermissionUser}
			if admin {
				peer.Permissions = pairing.PermissionAdmin
			}
			if err := peer.Validate(); err != nil {
				return err
			}

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

			if err := conn.AddPairing(cmd.Context(), peer); err != nil {
				return err
			}
			printf(cmd, "Added %s (%s) to %s\n", peer.ID, peer.Permissions, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port (default: stored or discovered)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant admin permission")
	return cmd
}

func pairingsRemoveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "remove <accessory-id> <controller-id>",
		Short: "Remove a controller from an accessory",
		Args:  cobra.ExactArgs(2),
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

			if err := conn.RemovePairing(cmd.Context(), args[1]); err != nil {
				return err
			}
			printf(cmd, "Removed %s from %s\n", args[1], args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "accessory host:port (default: stored or discovered)")
	return cmd
}
