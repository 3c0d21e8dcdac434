package commands

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/config"
	"github.com/skylift/skylift/pkg/protocol"
	"github.com/skylift/skylift/pkg/tracker"
)

func newWatchCommand() *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "watch OPERATION_ID",
		Short: "Attach to an already-running operation",
		Long: `Open the push stream for an operation that is already running and
follow it to its terminal phase.

Because the stream carries no kind marker, --kind tells the watcher which
phase model to apply. Watching does not touch the local operation
history; it is a read-only view.`,
		Example: `  # Watch a running apply
  skylift watch op-42 --kind apply

  # Watch a generation workflow
  skylift watch op-17 --kind generate`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			operationID := args[0]

			kind := tracker.OperationKind(kindFlag)
			if err := kind.Validate(); err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			sub, err := a.newSubscriber()
			if err != nil {
				return err
			}

			// Watch sessions can outlive a config edit. Changes apply to
			// components built after the reload, not to this session.
			loader := config.NewLoader(a.logger)
			if err := loader.Watch(ctx, configPath, func(*config.Config) {
				a.logger.Info("Configuration reloaded; applies to new sessions")
			}); err != nil {
				a.logger.WithError(err).Debug("Config file not watchable")
			}

			out := newRenderer()
			state := tracker.NewPhaseState(kind)
			log := tracker.NewLogAggregator(a.cfg.Stream.CoalesceWindow)
			done := make(chan struct{})
			var once sync.Once

			out.phase(state)
			cancel, err := sub.Open(ctx, operationID, func(evt *protocol.Event) {
				if rec, appended := log.Append(evt); appended {
					out.record(rec)
				}
				if state.Apply(evt) {
					out.phase(state)
				}
				if evt.Type.IsTerminal() && state.Phase.IsTerminal() {
					once.Do(func() { close(done) })
				}
			})
			if err != nil {
				return err
			}
			defer cancel()

			select {
			case <-done:
				out.summary(state)
				if state.Phase == tracker.PhaseFailed {
					return fmt.Errorf("%s failed: %s", kind, state.Error)
				}
				return nil
			case <-ctx.Done():
				a.logger.WithOperationID(operationID).
					Info("Stopped watching; the operation continues on the backend")
				return ctx.Err()
			}
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "apply", "operation kind (plan, apply, destroy, generate)")

	return cmd
}
