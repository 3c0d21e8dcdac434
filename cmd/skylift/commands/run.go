package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skylift/skylift/pkg/telemetry"
	"github.com/skylift/skylift/pkg/tracker"
)

// terminalOutcome is what an operation run resolves to.
type terminalOutcome struct {
	success bool
	state   tracker.PhaseState
}

// runOperation starts one operation and follows its push stream to a
// terminal phase, rendering progress and recording everything locally. On
// interrupt the stream is detached locally; the remote job keeps running.
func runOperation(cmd *cobra.Command, subject string, kind tracker.OperationKind, params map[string]string) (tracker.PhaseState, error) {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return tracker.PhaseState{}, err
	}
	defer a.close(ctx)

	trk, err := a.newTracker(subject)
	if err != nil {
		return tracker.PhaseState{}, err
	}

	out := newRenderer()
	rec := newRecorder(a.store, a.logger)
	done := make(chan terminalOutcome, 1)

	trk.OnPhaseChange(func(state tracker.PhaseState) {
		out.phase(state)
		rec.phase(state)
	})
	trk.OnLogAppended(func(lr tracker.LogRecord) {
		out.record(lr)
		rec.log(lr)
	})
	trk.OnTerminal(func(success bool, state tracker.PhaseState) {
		rec.terminal(success, state)
		done <- terminalOutcome{success: success, state: state}
	})

	handle, err := trk.Start(ctx, kind, params)
	if err != nil {
		// A stream-open failure still delivered connection_lost, so the
		// failed state is already rendered and recorded.
		return trk.State(), err
	}
	rec.bind(ctx, subject, handle, trk.State())

	_, span := a.tracer.StartOperationSpan(ctx, handle.OperationID, string(kind))
	defer span.End()

	select {
	case outcome := <-done:
		out.summary(outcome.state)
		if !outcome.success {
			telemetry.RecordError(span, fmt.Errorf("%s", outcome.state.Error))
			return outcome.state, fmt.Errorf("%s failed: %s", kind, outcome.state.Error)
		}
		telemetry.RecordSuccess(span)
		return outcome.state, nil

	case <-ctx.Done():
		trk.Cancel()
		a.logger.WithOperationID(handle.OperationID).
			Info("Stopped watching; the operation continues on the backend")
		return trk.State(), ctx.Err()
	}
}

// parseParams turns repeated key=value flags into an operation parameter
// map.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}
