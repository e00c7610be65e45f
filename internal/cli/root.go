// Package cli is the offsyncd command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offsync/internal/config"
)

// Version is stamped at build time.
var Version = "dev"

type app struct {
	configPath string
	loader     *config.Loader
}

// load reads the configuration, binding the named command flags first.
func (a *app) load(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	a.loader = config.NewLoader()
	if err := a.loader.BindFlags(cmd.Flags(), flags); err != nil {
		return nil, err
	}
	return a.loader.Load(a.configPath)
}

func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "offsyncd",
		Short:        "Offline-first cache and sync worker",
		Long:         `Runs the offline worker in front of an application origin: caches the app shell, serves it offline and replays queued mutations when the network returns.`,
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: ./offsync.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newEnqueueCmd(a),
		newPendingCmd(a),
		newSyncCmd(a),
		newVersionCmd(a),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *app) printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
