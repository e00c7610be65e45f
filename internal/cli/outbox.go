package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offsync"
	"github.com/unkn0wn-root/offsync/outbox"
	"github.com/unkn0wn-root/offsync/syncer"
)

func newEnqueueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:          "enqueue <task|habit> <json>",
		Short:        "Queue a mutation in the outbox",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := outbox.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.load(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.ValidateOutbox(); err != nil {
				return err
			}
			ob, err := openOutbox(cmd.Context(), cfg, offsync.NopLogger{})
			if err != nil {
				return err
			}
			defer ob.Close()

			e, err := ob.Enqueue(cmd.Context(), kind, json.RawMessage(args[1]))
			if err != nil {
				return err
			}
			a.printf(cmd, "%s\n", e.ID)
			return nil
		},
	}
}

func newPendingCmd(a *app) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:          "pending",
		Short:        "Show queued mutations per kind",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.ValidateOutbox(); err != nil {
				return err
			}
			ob, err := openOutbox(cmd.Context(), cfg, offsync.NopLogger{})
			if err != nil {
				return err
			}
			defer ob.Close()

			for _, kind := range outbox.Kinds {
				if !list {
					n, err := ob.Count(cmd.Context(), kind)
					if err != nil {
						return err
					}
					a.printf(cmd, "%s\t%d\n", kind.Category(), n)
					continue
				}
				entries, err := ob.ListPending(cmd.Context(), kind)
				if err != nil {
					return err
				}
				for _, e := range entries {
					a.printf(cmd, "%s\t%s\t%s\n", kind.Category(), e.ID, e.Payload)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List entries instead of counts")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [task|habit]...",
		Short: "Replay queued mutations once",
		Long: `Delivers the outbox to the origin without running the worker. Entries
that fail stay queued.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kinds []outbox.Kind
			for _, arg := range args {
				k, err := outbox.ParseKind(arg)
				if err != nil {
					return err
				}
				kinds = append(kinds, k)
			}
			cfg, err := a.load(cmd, map[string]string{"origin": "origin"})
			if err != nil {
				return err
			}
			if err := cfg.ValidateOutbox(); err != nil {
				return err
			}
			if cfg.Origin == "" {
				return fmt.Errorf("origin is required")
			}
			logOut, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logOut.Close()
			log := logOut.Logger

			ob, err := openOutbox(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer ob.Close()

			coord, err := syncer.New(syncer.Options{
				Outbox:        ob,
				BaseURL:       cfg.Origin,
				Endpoints:     endpoints(cfg),
				EntryIDHeader: cfg.Sync.EntryIDHeader,
				Logger:        log,
				Hooks:         hooks(cfg, logOut),
			})
			if err != nil {
				return err
			}
			results, err := coord.Drain(cmd.Context(), kinds...)
			for _, r := range results {
				a.printf(cmd, "%s\tsynced=%d\tfailed=%d\n", r.Kind.Category(), r.Synced, r.Failed)
			}
			return err
		},
	}
	cmd.Flags().String("origin", "", "Application origin (scheme://host)")
	return cmd
}
