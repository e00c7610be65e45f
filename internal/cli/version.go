package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offsync/notify"
	"github.com/unkn0wn-root/offsync/worker"
)

func newVersionCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the active generation of a running worker",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd, map[string]string{"listen": "listen"})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			port, err := notify.Dial(ctx, notifyURL(cfg.Listen)+worker.NotifyPath)
			if err != nil {
				return err
			}
			defer port.Close()

			reply, err := port.Request(ctx, notify.Message{Type: notify.TypeGetVersion})
			if err != nil {
				return err
			}
			a.printf(cmd, "%s\n", reply.Version)
			return nil
		},
	}
	cmd.Flags().String("listen", "", "Worker listen address")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	return cmd
}

// notifyURL maps the listen address to the worker's notifier endpoint.
func notifyURL(listen string) string {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "ws://" + host
}
