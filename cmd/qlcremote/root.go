package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/qlcremote/internal/app"
	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/session"
	"github.com/dokzlo13/qlcremote/internal/settings"
)

var (
	configPath    string
	resetSettings bool
	logLevel      string
	readyTimeout  time.Duration
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          config.AppName,
		Short:        "Remote control for a QLC+ lighting desk",
		Long:         "Drives the QLC+ web interface: simple desk channels, virtual console widgets and a keypad command line.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to configuration file")
	flags.BoolVar(&resetSettings, "reset-settings", false, "Forget persisted settings on startup")
	flags.StringVar(&logLevel, "log-level", "", "Override the configured log level (trace|debug|info|warn|error)")
	flags.DurationVar(&readyTimeout, "ready-timeout", 5*time.Second, "How long one-shot commands wait for the connection")

	cmd.AddCommand(
		newRunCmd(),
		newShellCmd(),
		newExecCmd(),
		newScriptCmd(),
		newWidgetsCmd(),
		newMonitorCmd(),
		newSettingsCmd(),
		newHistoryCmd(),
	)

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)
	return cmd
}

// loadApp reads the configuration, sets up logging and builds the
// application without starting it.
func loadApp() (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	setupLogging(level, cfg.Log.JSON, cfg.Log.Colors)

	application, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	if resetSettings {
		log.Info().Msg("Clearing persisted settings (--reset-settings)")
		if err := application.ResetSettings(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear persisted settings")
		}
	}
	return application, nil
}

// startApp builds and starts the application under a signal context.
func startApp() (*app.App, context.Context, error) {
	application, err := loadApp()
	if err != nil {
		return nil, nil, err
	}

	ctx := app.SignalContext()
	if err := application.Start(ctx); err != nil {
		_ = application.Stop()
		return nil, nil, fmt.Errorf("failed to start application: %w", err)
	}
	return application, ctx, nil
}

func stopApp(application *app.App) {
	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
}

// waitReady blocks until the session can take commands.
func waitReady(ctx context.Context, sess *session.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !sess.Ready() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("not connected to QLC+ (%s)", sess.State())
		case <-ticker.C:
		}
	}
	return nil
}

func runDaemon() error {
	application, _, err := startApp()
	if err != nil {
		return err
	}
	application.Wait()
	stopApp(application)
	return nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the session, the startup script and the status server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive keypad shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := startApp()
			if err != nil {
				return err
			}
			defer stopApp(application)
			return runShell(ctx, application, prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "qlc> ", "Shell prompt")
	return cmd
}

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "exec <command>",
		Short:   "Run one keypad command, e.g. \"1 THRU 8 AT 255\"",
		Args:    cobra.MinimumNArgs(1),
		Example: "  qlcremote exec 5 AT 128\n  qlcremote exec UNI 2 CLR",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := startApp()
			if err != nil {
				return err
			}
			defer stopApp(application)

			sess := application.Session()
			if err := waitReady(ctx, sess, readyTimeout); err != nil {
				return err
			}
			entry := sess.Execute(ctx, strings.Join(args, " "))
			printEntry(cmd, entry.Command, entry.Succeeded)
			if !entry.Succeeded {
				return errors.New("command failed")
			}
			return nil
		},
	}
}

func newScriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "script <file.lua>",
		Short: "Run a Lua macro against the desk and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := startApp()
			if err != nil {
				return err
			}
			defer stopApp(application)

			if err := waitReady(ctx, application.Session(), readyTimeout); err != nil {
				return err
			}
			return application.Services().Script.Run(ctx, args[0])
		},
	}
}

func newWidgetsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "widgets",
		Short: "Discover and list the virtual console widgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := startApp()
			if err != nil {
				return err
			}
			defer stopApp(application)

			sess := application.Session()
			if err := waitReady(ctx, sess, readyTimeout); err != nil {
				return err
			}
			if err := waitDiscovery(ctx, sess, readyTimeout); err != nil {
				log.Warn().Err(err).Msg("Widget discovery incomplete")
			}

			widgets := sess.Widgets().List()
			if asJSON {
				return writeJSON(cmd, widgets)
			}
			for _, w := range widgets {
				fmt.Fprintln(cmd.OutOrStdout(), w)
			}
			if ids := sess.Widgets().TimedOut(); len(ids) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no type reported for: %v\n", ids)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// waitDiscovery waits until a widget list arrived and no type request is
// outstanding.
func waitDiscovery(ctx context.Context, sess *session.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	store := sess.Widgets()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for store.Version() == 0 || !store.Consistent() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func newMonitorCmd() *cobra.Command {
	var universe, page int
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print channel values and notices as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, ctx, err := startApp()
			if err != nil {
				return err
			}
			defer stopApp(application)

			sess := application.Session()
			if cmd.Flags().Changed("universe") || cmd.Flags().Changed("page") {
				if universe == 0 {
					universe = sess.Settings().Current().DefaultUniverse
				}
				if err := sess.ViewPage(ctx, universe, page); err != nil {
					return err
				}
			}

			updates := sess.Updates().Subscribe("monitor", 64, eventbus.DropNewest)
			defer func() {
				updates.Close()
				if n := updates.Dropped(); n > 0 {
					log.Info().Uint64("dropped", n).Msg("Monitor fell behind")
				}
			}()
			notices := sess.Notices().Subscribe("monitor", 16, eventbus.DropNewest)
			defer notices.Close()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case u, ok := <-updates.C():
					if !ok {
						return nil
					}
					printUpdate(out, sess, u)
				case n, ok := <-notices.C():
					if !ok {
						return nil
					}
					printNotice(out, n)
				}
			}
		},
	}
	cmd.Flags().IntVarP(&universe, "universe", "u", 0, "Universe to view (default: configured default universe)")
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Zero-based page to view")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every setting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSettings(func(store *settings.Store) error {
					cur := store.Current()
					for _, key := range settings.Keys {
						v, _ := cur.Get(key)
						fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", key, v)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSettings(func(store *settings.Store) error {
					v, err := store.Current().Get(args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change and persist one setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSettings(func(store *settings.Store) error {
					updated, err := store.Set(context.Background(), args[0], args[1])
					if err != nil {
						return err
					}
					v, _ := updated.Get(args[0])
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], v)
					return nil
				})
			},
		},
	)
	return cmd
}

// withSettings runs fn against the persisted settings without starting a
// session.
func withSettings(fn func(*settings.Store) error) error {
	application, err := loadApp()
	if err != nil {
		return err
	}
	defer stopApp(application)
	return fn(application.Services().Settings)
}

func newHistoryCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent keypad commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := loadApp()
			if err != nil {
				return err
			}
			defer stopApp(application)

			if limit <= 0 {
				limit = application.Config().History.Limit
			}
			entries, err := application.Session().History(limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			for _, e := range entries {
				status := "ok"
				if !e.Succeeded {
					status = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s %s\n",
					e.Timestamp.Local().Format(time.DateTime), status, e.Command)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of entries (default: history.limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func printEntry(cmd *cobra.Command, command string, ok bool) {
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", command)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", command)
}
