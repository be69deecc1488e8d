// hap-pair pairs with HomeKit accessories and manages their pairings.
//
// Usage:
//
//	hap-pair discover
//	hap-pair pair --pin 3939 --addr 192.168.1.20:51826
//	hap-pair verify AA:BB:CC:DD:EE:FF
//	hap-pair pairings list AA:BB:CC:DD:EE:FF
//	hap-pair unpair AA:BB:CC:DD:EE:FF
//	hap-pair simulate --listen :51826
package main

import (
	"os"

	"github.com/backkem/hap/cmd/hap-pair/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
