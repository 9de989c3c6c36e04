package guard

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/util"
)

// DefaultKillSwitchEnv is the environment variable consulted on every check.
const DefaultKillSwitchEnv = "TELEBURN_KILL_SWITCH"

// defaultRetryAfter is the retry delay suggested to callers while the
// switch is active.
const defaultRetryAfter = 300 * time.Second

// KillState is the result of a kill-switch check.
type KillState struct {
	Active     bool
	Message    string
	RetryAfter time.Duration
}

// KillSwitch is a manual circuit breaker: flip an environment variable or
// drop a state file and every mutating entry point short-circuits, no
// redeploy needed. Check re-reads the sources on every call; the state is
// never cached, so clearing the flag takes effect on the next request.
type KillSwitch struct {
	envVar string
	path   string
}

// NewKillSwitch creates a switch reading envVar and, when path is non-empty,
// a state file whose presence (with optional message content) activates it.
func NewKillSwitch(envVar, path string) *KillSwitch {
	if envVar == "" {
		envVar = DefaultKillSwitchEnv
	}
	return &KillSwitch{envVar: envVar, path: path}
}

// Check re-reads the kill-switch sources and returns the current state.
func (ks *KillSwitch) Check() KillState {
	if val, ok := os.LookupEnv(ks.envVar); ok {
		if state, active := parseSwitchValue(val); active {
			return state
		}
	}

	if ks.path != "" {
		if raw, err := os.ReadFile(ks.path); err == nil {
			msg := strings.TrimSpace(string(raw))
			if msg == "" {
				msg = "service temporarily unavailable"
			}
			return KillState{Active: true, Message: msg, RetryAfter: defaultRetryAfter}
		}
	}

	return KillState{}
}

// parseSwitchValue interprets the env var: "0", "false", "off" and empty
// deactivate; "1", "true", "on" activate with a stock message; anything
// else activates with the value as the operator message.
func parseSwitchValue(val string) (KillState, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "0", "false", "off":
		return KillState{}, false
	case "1", "true", "on":
		return KillState{
			Active:     true,
			Message:    "service temporarily unavailable",
			RetryAfter: defaultRetryAfter,
		}, true
	default:
		return KillState{
			Active:     true,
			Message:    strings.TrimSpace(val),
			RetryAfter: defaultRetryAfter,
		}, true
	}
}

// Watch logs kill-switch state-file transitions so activation shows up in
// the logs immediately rather than on the next request. Observability only:
// enforcement always goes through Check's fresh read.
func (ks *KillSwitch) Watch(ctx context.Context) error {
	if ks.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := ks.path
	if idx := strings.LastIndexByte(dir, '/'); idx > 0 {
		dir = dir[:idx]
	} else {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	util.SafeGo("kill-switch-watch", func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != ks.path {
					continue
				}
				state := ks.Check()
				if state.Active {
					logging.Warn("kill switch activated",
						"message", state.Message,
						logging.Component("guard"))
				} else {
					logging.Info("kill switch cleared", logging.Component("guard"))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("kill-switch watcher error", logging.Err(err), logging.Component("guard"))
			}
		}
	})
	return nil
}
