// Package main is the entry point for the Jarvis CLI. Jarvis is a hybrid
// voice-assistant brain: utterances resolve through a learned-command cache,
// a cloud model when online, and an offline classifier, and every confident
// remote resolution is learned so the next time works without the network.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/normanking/jarvis/internal/actions"
	"github.com/normanking/jarvis/internal/classifier"
	"github.com/normanking/jarvis/internal/config"
	"github.com/normanking/jarvis/internal/connectivity"
	"github.com/normanking/jarvis/internal/logging"
	"github.com/normanking/jarvis/internal/remote"
	"github.com/normanking/jarvis/internal/resolver"
	"github.com/normanking/jarvis/internal/secrets"
	"github.com/normanking/jarvis/internal/server"
	"github.com/normanking/jarvis/internal/store"
	"github.com/normanking/jarvis/pkg/types"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

// ═══════════════════════════════════════════════════════════════════════════════
// STYLES
// ═══════════════════════════════════════════════════════════════════════════════

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	detailStyle  = lipgloss.NewStyle().Faint(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	sourceStyles = map[types.Source]lipgloss.Style{
		types.SourceLearned:    lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		types.SourceRemote:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		types.SourceLocal:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		types.SourceKeyword:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		types.SourceUnresolved: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jarvis",
		Short: "Jarvis - hybrid online/offline voice assistant brain",
		Long: `Jarvis resolves spoken commands through a layered chain:
learned commands answer instantly, the cloud model handles new phrasings
when online, and the offline classifier keeps the core commands working
with no network at all.

Interactive session:   jarvis
One-shot resolution:   jarvis resolve "open chrome"
Speech bridge:         jarvis serve`,
		RunE: runInteractive,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.jarvis/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Jarvis v%s\n", version)
		},
	})

	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(knowledgeCmd())
	rootCmd.AddCommand(apikeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// WIRING
// ═══════════════════════════════════════════════════════════════════════════════

// app holds the wired component graph for one process.
type app struct {
	cfg      *config.Config
	store    *store.Store
	monitor  *connectivity.Monitor
	secrets  *secrets.Manager
	resolver *resolver.Resolver
	actions  *actions.Dispatcher
	closers  []func() error
}

// buildApp loads config and wires every component. The caller owns shutdown
// via app.close.
func buildApp(withMonitor bool) (*app, error) {
	cfg, err := config.LoadFromPath(config.Path(cfgPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logCloser, err := logging.Setup(level, cfg.Logging.File)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	a := &app{cfg: cfg}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser.Close)
	}

	a.store, err = store.Open(cfg.Knowledge.DBPath,
		store.WithMaxPatternExamples(cfg.Knowledge.MaxPatternExamples))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open knowledge base: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	local, err := classifier.New()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	a.secrets = secrets.New(cfg.DataDir())

	var remoteStrategy resolver.RemoteStrategy
	if apiKey, ok := a.secrets.APIKey(); ok {
		remoteStrategy = remote.New(remote.Config{
			Endpoint:  cfg.LLM.Endpoint,
			Model:     cfg.LLM.Model,
			APIKey:    apiKey,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.Resolver.RemoteTimeout,
		})
	} else {
		log.Info().Msg("no api key configured, running offline only")
	}

	opts := []resolver.Option{
		resolver.WithConfidenceThreshold(cfg.Resolver.ConfidenceThreshold),
		resolver.WithLearning(cfg.Resolver.EnableLearning),
		resolver.WithSecrets(a.secrets),
	}

	if withMonitor {
		a.monitor = connectivity.NewMonitor(
			connectivity.WithProbes(cfg.Connectivity.Probes),
			connectivity.WithInterval(cfg.Connectivity.CheckInterval),
			connectivity.WithProbeTimeout(cfg.Connectivity.ProbeTimeout),
		)
		opts = append(opts, resolver.WithConnectivity(a.monitor))
	}

	a.resolver = resolver.New(remoteStrategy, local, a.store, opts...)
	a.actions = actions.New()
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("shutdown error")
		}
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ═══════════════════════════════════════════════════════════════════════════════
// INTERACTIVE SESSION
// ═══════════════════════════════════════════════════════════════════════════════

// terminalClarifier asks the user on stdin to confirm a candidate.
type terminalClarifier struct {
	in  *bufio.Reader
	out *os.File
}

func (c *terminalClarifier) Confirm(ctx context.Context, utterance string, candidate types.Resolution) (bool, error) {
	fmt.Fprintf(c.out, "%s I'm not sure. Did you mean %s",
		warnStyle.Render("?"),
		titleStyle.Render(describeCandidate(candidate)))
	fmt.Fprint(c.out, "? [y/N] ")

	line, err := c.in.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func describeCandidate(res types.Resolution) string {
	if app, ok := res.Parameters["app"]; ok {
		return fmt.Sprintf("%s (%s)", res.Action, app)
	}
	return res.Action
}

func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	a.monitor.Start(ctx)
	defer a.monitor.Stop()

	if a.cfg.Server.Enabled {
		go func() {
			if err := server.New(a.cfg.Server.Addr, a.resolver).Start(ctx); err != nil {
				log.Warn().Err(err).Msg("utterance bridge failed")
			}
		}()
	}

	in := bufio.NewReader(os.Stdin)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Println(titleStyle.Render("Jarvis") + detailStyle.Render(" v"+version+" — type a command, or 'goodbye' to exit"))
	}
	clarifier := &terminalClarifier{in: in, out: os.Stdout}

	for {
		fmt.Print(promptStyle.Render("> "))
		line, err := in.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		res := a.resolver.ResolveWith(ctx, types.Utterance{Text: text}, clarifier)
		printResolution(res)

		if res.Source == types.SourceUnresolved {
			fmt.Println(warnStyle.Render("I didn't catch that. Try 'help' for what I can do."))
			continue
		}

		if actions.Destructive(res.Action) && !confirmDestructive(in, res.Action) {
			fmt.Println(detailStyle.Render("Cancelled."))
			continue
		}

		reply, err := a.actions.Execute(ctx, res)
		if err != nil {
			fmt.Println(errStyle.Render("✗ ") + err.Error())
			continue
		}
		fmt.Println(replyStyle.Render(reply))

		if res.Action == "exit_assistant" {
			return nil
		}
	}
}

func confirmDestructive(in *bufio.Reader, action string) bool {
	fmt.Printf("%s Really run %s? [y/N] ", warnStyle.Render("!"), titleStyle.Render(action))
	line, err := in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func printResolution(res types.Resolution) {
	style, ok := sourceStyles[res.Source]
	if !ok {
		style = detailStyle
	}
	fmt.Printf("%s %s\n", style.Render("["+string(res.Source)+"]"),
		detailStyle.Render(fmt.Sprintf("%s → %s (%.2f, %s)",
			res.Intent, res.Action, res.Confidence, res.Duration.Round(time.Millisecond))))
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESOLVE COMMAND (one-shot)
// ═══════════════════════════════════════════════════════════════════════════════

func resolveCmd() *cobra.Command {
	var execute bool

	cmd := &cobra.Command{
		Use:   "resolve [utterance]",
		Short: "Resolve a single utterance and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			text := strings.Join(args, " ")
			res := a.resolver.Resolve(ctx, types.Utterance{Text: text})
			printResolution(res)

			if !execute || res.Source == types.SourceUnresolved {
				return nil
			}
			if actions.Destructive(res.Action) {
				return fmt.Errorf("refusing to run destructive action %q non-interactively", res.Action)
			}
			reply, err := a.actions.Execute(ctx, res)
			if err != nil {
				return err
			}
			fmt.Println(replyStyle.Render(reply))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&execute, "execute", "x", false, "execute the resolved action")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND (speech bridge)
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket utterance bridge for a speech front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(true)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			a.monitor.Start(ctx)
			defer a.monitor.Stop()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			bridge := server.New(addr, a.resolver)
			fmt.Println(titleStyle.Render("Jarvis bridge") + detailStyle.Render(" listening on "+addr))
			return bridge.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromPath(config.Path(cfgPath))
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Resolver"))
			fmt.Printf("  confidence threshold: %.2f\n", cfg.Resolver.ConfidenceThreshold)
			fmt.Printf("  remote timeout:       %s\n", cfg.Resolver.RemoteTimeout)
			fmt.Printf("  learning:             %v\n", cfg.Resolver.EnableLearning)
			fmt.Println(titleStyle.Render("Connectivity"))
			fmt.Printf("  check interval:       %s\n", cfg.Connectivity.CheckInterval)
			fmt.Printf("  probes:               %s\n", strings.Join(cfg.Connectivity.Probes, ", "))
			fmt.Println(titleStyle.Render("Knowledge"))
			fmt.Printf("  database:             %s\n", cfg.Knowledge.DBPath)
			fmt.Println(titleStyle.Render("LLM"))
			fmt.Printf("  model:                %s\n", cfg.LLM.Model)
			fmt.Printf("  endpoint:             %s\n", cfg.LLM.Endpoint)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Path(cfgPath))
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// KNOWLEDGE COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect the learned-command knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render("Knowledge base"))
			fmt.Printf("  learned commands: %d\n", stats.LearnedCommands)
			fmt.Printf("  unique patterns:  %d\n", stats.UniquePatterns)
			for intent, n := range stats.ByIntent {
				fmt.Printf("  %-20s %d\n", intent, n)
			}
			return nil
		},
	})

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently learned commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			cmds, err := a.store.RecentCommands(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(cmds) == 0 {
				fmt.Println(detailStyle.Render("Nothing learned yet."))
				return nil
			}
			for _, c := range cmds {
				fmt.Printf("%s %s %s\n",
					detailStyle.Render(c.CreatedAt.Format("2006-01-02 15:04")),
					titleStyle.Render(c.Intent),
					c.UtteranceText)
			}
			return nil
		},
	}
	recentCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of commands to show")
	cmd.AddCommand(recentCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "patterns [intent]",
		Short: "List materialized intent patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			var patterns []types.IntentPattern
			if len(args) > 0 {
				patterns, err = a.store.PatternsFor(cmd.Context(), args[0])
			} else {
				patterns, err = a.store.Patterns(cmd.Context())
			}
			if err != nil {
				return err
			}
			for _, p := range patterns {
				fmt.Printf("%s %s %s\n",
					titleStyle.Render(fmt.Sprintf("%3d×", p.OccurrenceCount)),
					p.Intent,
					detailStyle.Render(strings.Join(p.Examples, " | ")))
			}
			return nil
		},
	})

	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// API KEY COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func secretsManager() (*secrets.Manager, error) {
	cfg, err := config.LoadFromPath(config.Path(cfgPath))
	if err != nil {
		return nil, err
	}
	return secrets.New(cfg.DataDir()), nil
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage the encrypted cloud API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the API key (prompted, not echoed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("API key: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}

			m, err := secretsManager()
			if err != nil {
				return err
			}
			if err := m.Store(strings.TrimSpace(string(raw))); err != nil {
				return err
			}
			fmt.Println(replyStyle.Render("✓ API key stored (encrypted)."))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether an API key is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := secretsManager()
			if err != nil {
				return err
			}
			if m.Configured() {
				fmt.Println(replyStyle.Render("✓ API key configured."))
			} else {
				fmt.Println(warnStyle.Render("No API key configured; running offline only."))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := secretsManager()
			if err != nil {
				return err
			}
			if err := m.Delete(); err != nil {
				return err
			}
			fmt.Println(replyStyle.Render("✓ API key removed."))
			return nil
		},
	})

	return cmd
}
