package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/skylift/skylift/pkg/tracker"
)

// renderer prints tracker signals for humans or machines. Text mode shows
// phase transitions (and log records when verbose); JSON mode emits one
// object per line.
type renderer struct {
	w       io.Writer
	json    bool
	verbose bool
}

func newRenderer() *renderer {
	return &renderer{w: os.Stdout, json: jsonOutput, verbose: verbose}
}

func (r *renderer) phase(state tracker.PhaseState) {
	if r.json {
		r.emit(map[string]interface{}{
			"event":    "phase",
			"kind":     state.Kind,
			"phase":    state.Phase,
			"progress": state.Progress,
			"message":  state.Message,
			"error":    state.Error,
		})
		return
	}
	fmt.Fprintf(r.w, "[%3d%%] %-20s %s\n", state.Progress, state.Phase, state.Message)
}

func (r *renderer) record(rec tracker.LogRecord) {
	if r.json {
		r.emit(map[string]interface{}{
			"event":     "log",
			"id":        rec.ID,
			"type":      rec.Type,
			"raw_type":  rec.RawType,
			"message":   rec.Message,
			"timestamp": rec.Timestamp.Format(time.RFC3339),
		})
		return
	}
	if r.verbose {
		fmt.Fprintf(r.w, "       %s  %s\n", rec.Timestamp.Format("15:04:05"), rec.Message)
	}
}

// summary prints the terminal result payload.
func (r *renderer) summary(state tracker.PhaseState) {
	if r.json {
		r.emit(map[string]interface{}{
			"event":  "result",
			"phase":  state.Phase,
			"error":  state.Error,
			"result": state.Result,
		})
		return
	}

	if state.Result.PlanOutput != "" {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, state.Result.PlanOutput)
	}
	if len(state.Result.Outputs) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "Outputs:")
		for _, key := range sortedKeys(state.Result.Outputs) {
			fmt.Fprintf(r.w, "  %s = %s\n", key, state.Result.Outputs[key])
		}
	}
	if len(state.Result.Files) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintf(r.w, "Generated %d files:\n", len(state.Result.Files))
		for _, path := range sortedKeys(state.Result.Files) {
			fmt.Fprintf(r.w, "  %s\n", path)
		}
	}
	if len(state.Result.RepositoryURLs) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "Repositories:")
		for _, name := range sortedKeys(state.Result.RepositoryURLs) {
			fmt.Fprintf(r.w, "  %s: %s\n", name, state.Result.RepositoryURLs[name])
		}
	}
}

func (r *renderer) emit(obj map[string]interface{}) {
	buf, err := json.Marshal(obj)
	if err != nil {
		return
	}
	fmt.Fprintln(r.w, string(buf))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
