// Package commands implements the hap-pair command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/hap/pkg/controller"
	"github.com/backkem/hap/pkg/discovery"
	"github.com/backkem/hap/pkg/store"
	"github.com/pion/logging"
	"github.com/spf13/cobra"
)

// app is the state shared by all commands of one invocation.
type app struct {
	configPath string
	storePath  string
	logLevel   string
	timeout    time.Duration

	cfg           *Config
	loggerFactory logging.LoggerFactory
}

// Execute runs the hap-pair command line.
// Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "hap-pair",
		Short:        "Pair with and manage HomeKit accessories",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.storePath, "store", "", "pairing store path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: disabled|error|warn|info|debug|trace")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "per-exchange timeout (overrides config)")

	root.AddCommand(
		discoverCmd(a),
		pairCmd(a),
		verifyCmd(a),
		pairingsCmd(a),
		unpairCmd(a),
		simulateCmd(a),
	)
	return root
}

// load merges the config file and flags.
func (a *app) load(cmd *cobra.Command) error {
	cfg := DefaultConfig()
	if a.configPath != "" {
		loaded, err := LoadConfig(a.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if a.storePath != "" {
		cfg.Store = a.storePath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.timeout != 0 {
		cfg.Timeout = a.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lf, err := cfg.LoggerFactory(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.loggerFactory = lf
	return nil
}

// controller opens the store and creates the controller.
func (a *app) controller() (*controller.Controller, error) {
	fs, err := store.OpenFile(a.cfg.Store)
	if err != nil {
		return nil, err
	}
	if a.cfg.DeviceID != "" {
		if err := pinDeviceID(fs, a.cfg.DeviceID); err != nil {
			return nil, err
		}
	}
	group, err := a.cfg.Group()
	if err != nil {
		return nil, err
	}
	return controller.New(controller.Config{
		Storage:       fs,
		Timeout:       a.cfg.Timeout,
		Group:         group,
		LoggerFactory: a.loggerFactory,
	})
}

// pinDeviceID stores id as the controller identifier, refusing to replace
// a different one that accessories may already know.
func pinDeviceID(s store.Storage, id string) error {
	current, err := s.LoadDeviceID()
	switch {
	case err == nil && current == id:
		return nil
	case err == nil:
		return fmt.Errorf("store already has device id %s, config wants %s", current, id)
	case errors.Is(err, store.ErrNotFound):
		return s.SaveDeviceID(id)
	default:
		return err
	}
}

func (a *app) resolver() (*discovery.Resolver, error) {
	return discovery.NewResolver(discovery.ResolverConfig{
		BrowseTimeout: a.cfg.Timeout,
		LoggerFactory: a.loggerFactory,
	})
}

// resolveAddr returns addr if set, otherwise browses for the accessory.
func (a *app) resolveAddr(ctx context.Context, accessoryID, addr string) (string, error) {
	if addr != "" {
		return addr, nil
	}
	r, err := a.resolver()
	if err != nil {
		return "", err
	}
	svc, err := r.Find(ctx, accessoryID)
	if err != nil {
		return "", fmt.Errorf("failed to find %s: %w", accessoryID, err)
	}
	return svc.Addr(), nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
