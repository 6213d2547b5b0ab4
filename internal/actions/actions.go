// Package actions executes resolved intents on the local machine. Each
// action maps to a platform command; the dispatcher is a registry so the
// CLI and the bridge share one execution path.
package actions

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/jarvis/pkg/types"
)

// Handler executes one action and returns a spoken-style reply.
type Handler func(ctx context.Context, params map[string]string) (string, error)

// Dispatcher routes resolutions to their handlers.
type Dispatcher struct {
	handlers map[string]Handler
	dryRun   bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDryRun disables command execution; handlers report what they would do.
func WithDryRun(enabled bool) Option {
	return func(d *Dispatcher) { d.dryRun = enabled }
}

// New creates a dispatcher with the built-in handler set.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]Handler)}
	for _, opt := range opts {
		opt(d)
	}
	d.registerBuiltins()
	return d
}

// Register adds or replaces a handler.
func (d *Dispatcher) Register(action string, h Handler) {
	d.handlers[action] = h
}

// Supported reports whether the action has a handler.
func (d *Dispatcher) Supported(action string) bool {
	_, ok := d.handlers[action]
	return ok
}

// Destructive reports whether the action changes machine state in a way the
// caller should confirm first.
func Destructive(action string) bool {
	switch action {
	case "system_shutdown", "system_sleep", "lock_screen":
		return true
	}
	return false
}

// Execute runs the handler for a resolution. Unresolved and unknown
// resolutions are rejected before any handler runs.
func (d *Dispatcher) Execute(ctx context.Context, res types.Resolution) (string, error) {
	if res.Source == types.SourceUnresolved || res.Action == "" {
		return "", fmt.Errorf("nothing to execute for unresolved utterance")
	}

	h, ok := d.handlers[res.Action]
	if !ok {
		return "", fmt.Errorf("no handler for action %q", res.Action)
	}

	log.Debug().Str("action", res.Action).Bool("dry_run", d.dryRun).Msg("executing action")
	return h(ctx, res.Parameters)
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUILT-IN HANDLERS
// ═══════════════════════════════════════════════════════════════════════════════

func (d *Dispatcher) registerBuiltins() {
	d.Register("open_app", d.openApp)
	d.Register("volume_up", d.command("Volume up.", volumeCmd("up")))
	d.Register("volume_down", d.command("Volume down.", volumeCmd("down")))
	d.Register("volume_mute", d.command("Muted.", volumeCmd("mute")))
	d.Register("brightness_up", d.command("Brightness up.", brightnessCmd("up")))
	d.Register("brightness_down", d.command("Brightness down.", brightnessCmd("down")))
	d.Register("tell_time", tellTime)
	d.Register("tell_date", tellDate)
	d.Register("lock_screen", d.command("Screen locked.", lockCmd()))
	d.Register("system_sleep", d.command("Going to sleep.", sleepCmd()))
	d.Register("system_shutdown", d.command("Shutting down.", shutdownCmd()))
	d.Register("show_help", showHelp)
	d.Register("exit_assistant", exitAssistant)
	d.Register("answer_question", answerQuestion)
}

// command wraps a fixed platform command into a handler.
func (d *Dispatcher) command(reply string, argv []string) Handler {
	return func(ctx context.Context, _ map[string]string) (string, error) {
		if len(argv) == 0 {
			return "", fmt.Errorf("action not supported on %s", runtime.GOOS)
		}
		if d.dryRun {
			return fmt.Sprintf("[dry run] would run: %s", strings.Join(argv, " ")), nil
		}
		if err := runCommand(ctx, argv); err != nil {
			return "", err
		}
		return reply, nil
	}
}

func (d *Dispatcher) openApp(ctx context.Context, params map[string]string) (string, error) {
	app := params["app"]
	if app == "" {
		return "", fmt.Errorf("open_app requires an app parameter")
	}

	argv, ok := appCommand(app)
	if !ok {
		return "", fmt.Errorf("unknown application %q", app)
	}
	if d.dryRun {
		return fmt.Sprintf("[dry run] would run: %s", strings.Join(argv, " ")), nil
	}
	if err := startCommand(ctx, argv); err != nil {
		return "", err
	}
	return fmt.Sprintf("Opening %s.", app), nil
}

func tellTime(_ context.Context, _ map[string]string) (string, error) {
	return time.Now().Format("It is 3:04 PM."), nil
}

func tellDate(_ context.Context, _ map[string]string) (string, error) {
	return time.Now().Format("Today is Monday, January 2, 2006."), nil
}

func showHelp(_ context.Context, _ map[string]string) (string, error) {
	return strings.TrimSpace(`
I can handle these commands:
  open <app>            launch chrome, firefox, vscode, notepad, terminal, spotify, calculator or files
  volume up/down/mute   adjust the system volume
  brightness up/down    adjust the screen brightness
  what time is it       tell the current time
  what date is it       tell today's date
  lock my screen        lock the session
  go to sleep           suspend the machine
  shut down             power off the machine
  <any question>        answer from the cloud model when online
  goodbye               exit`), nil
}

func exitAssistant(_ context.Context, _ map[string]string) (string, error) {
	return "Goodbye.", nil
}

// answerQuestion is a placeholder reply path: the resolution already carries
// the question, and the caller decides how to present it. Free-form answers
// come from a follow-up model call, which the dispatcher does not own.
func answerQuestion(_ context.Context, params map[string]string) (string, error) {
	q := params["query"]
	if q == "" {
		return "", fmt.Errorf("answer_question requires a query parameter")
	}
	return fmt.Sprintf("Let me look into: %s", q), nil
}

func runCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("run %s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

// startCommand launches without waiting; app launches should not block the
// resolver loop.
func startCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	go cmd.Wait() // reap
	return nil
}
