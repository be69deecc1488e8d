package commands

import (
	"fmt"
	"net"

	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/pairing/pairtest"
	"github.com/spf13/cobra"
)

func simulateCmd(a *app) *cobra.Command {
	var (
		listen    string
		pin       string
		id        string
		name      string
		model     string
		advertise bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated accessory until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, err := a.cfg.Group()
			if err != nil {
				return err
			}
			accessoryID, err := discovery.NormalizeDeviceID(id)
			if err != nil {
				return err
			}
			record := discovery.Record{
				ID:       accessoryID,
				Model:    model,
				Category: discovery.CategoryOther,
				Status:   discovery.StatusNotPaired,
			}
			if err := record.Validate(); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			defer ln.Close()

			var adv *discovery.Advertiser
			if advertise {
				adv, err = discovery.NewAdvertiser(discovery.AdvertiserConfig{
					Port:          ln.Addr().(*net.TCPAddr).Port,
					LoggerFactory: a.loggerFactory,
				})
				if err != nil {
					return err
				}
				defer adv.Close()
				if err := adv.Advertise(name, record); err != nil {
					return err
				}
			}

			var acc *pairtest.Accessory
			acc, err = pairtest.NewAccessory(pairtest.Options{
				PIN:   pin,
				ID:    record.ID,
				Group: group,
				OnChange: func() {
					if adv == nil {
						return
					}
					r := record
					if acc.Paired() {
						r.Status &^= discovery.StatusNotPaired
					}
					if err := adv.Update(name, r); err != nil {
						printf(cmd, "failed to update advertisement: %v\n", err)
					}
				},
			})
			if err != nil {
				return err
			}

			srv, err := pairtest.NewServer(acc, ln, a.loggerFactory)
			if err != nil {
				return err
			}
			defer srv.Close()

			printf(cmd, "\n========================================\n")
			printf(cmd, "        Simulated Accessory Ready\n")
			printf(cmd, "========================================\n")
			printf(cmd, "Name:        %s\n", name)
			printf(cmd, "ID:          %s\n", record.ID)
			printf(cmd, "Address:     %s\n", srv.Addr())
			printf(cmd, "PIN:         %s\n", pin)
			printf(cmd, "Public key:  %s\n", acc.Peer().PublicKeyHex())
			printf(cmd, "========================================\n")

			<-cmd.Context().Done()
			printf(cmd, "Shutting down...\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":51826", "TCP listen address")
	cmd.Flags().StringVar(&pin, "pin", pairtest.DefaultPIN, "setup code")
	cmd.Flags().StringVar(&id, "id", pairtest.DefaultID, "accessory identifier")
	cmd.Flags().StringVar(&name, "name", "HAP Simulator", "DNS-SD instance name")
	cmd.Flags().StringVar(&model, "model", "Simulator1,1", "model announced in the TXT record")
	cmd.Flags().BoolVar(&advertise, "advertise", true, "announce the accessory via mDNS")
	return cmd
}
