package commands

import (
	"github.com/backkem/hap/pkg/discovery"
	"github.com/spf13/cobra"
)

func discoverCmd(a *app) *cobra.Command {
	var airplay bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse the local network for accessories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.resolver()
			if err != nil {
				return err
			}
			serviceType := discovery.ServiceTypeHAP
			if airplay {
				serviceType = discovery.ServiceTypeAirPlay
			}

			services, err := r.Browse(cmd.Context(), serviceType)
			if err != nil {
				return err
			}
			n := 0
			for svc := range services {
				printService(cmd, &svc)
				n++
			}
			if n == 0 {
				printf(cmd, "No accessories found.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&airplay, "airplay", false, "browse _airplay._tcp instead of _hap._tcp")
	return cmd
}

func printService(cmd *cobra.Command, svc *discovery.Service) {
	state := "unpaired"
	if svc.Type == discovery.ServiceTypeAirPlay {
		state = "airplay"
	} else if svc.Record.Paired() {
		state = "paired"
	}
	printf(cmd, "%-24s %s  %-21s %-10s %s\n",
		svc.Instance, svc.Record.ID, svc.Addr(), state, svc.Record.Model)
}
