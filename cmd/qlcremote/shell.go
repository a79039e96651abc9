package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dokzlo13/qlcremote/internal/app"
	"github.com/dokzlo13/qlcremote/internal/config"
	"github.com/dokzlo13/qlcremote/internal/effects"
	"github.com/dokzlo13/qlcremote/internal/eventbus"
	"github.com/dokzlo13/qlcremote/internal/router"
	"github.com/dokzlo13/qlcremote/internal/session"
	"github.com/dokzlo13/qlcremote/internal/settings"
)

var errExit = errors.New("exit")

const shellHelp = `Keypad commands go straight to the desk:
  5 AT 128            set a channel
  5 + 10 / 5 - 10     adjust relative to the current value
  5 CLR               reset a channel
  1 THRU 8 AT 255     set a range
  1 THRU 8 CLR        reset a range
  UNI 2 AT 0          set a whole universe
  UNI 2 CLR           reset a whole universe

Shell commands:
  page <universe> [page]      view a page of channels
  values                      print the viewed page
  group <ch>...               select the channel group
  fader <value>               sweep the group to a value
  zero | cleargroup           sweep the group to 0 / reset it
  flash on|off                flash the group
  effect <mode>               none, strobe, pulse, chase, wave
  cue [id] | press <id> | release <id> | slider <id> <value>
  widgets | discover          list / rediscover virtual console widgets
  status | retry | disconnect | auto on|off
  get <key> | set <key> <value> | settings
  history [-n N] [--failed]   recent keypad commands
  run <file.lua>              run a Lua macro
  log <level>                 trace, debug, info, warn, error
  help | exit`

func runShell(ctx context.Context, application *app.App, prompt string) error {
	historyFile, err := xdg.StateFile(filepath.Join(config.AppName, "shell_history"))
	if err != nil {
		log.Warn().Err(err).Msg("No shell history file")
		historyFile = ""
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	sh := &shell{ctx: ctx, app: application, sess: application.Session(), out: rl.Stdout()}

	notices := sh.sess.Notices().Subscribe("shell", 16, eventbus.DropNewest)
	defer notices.Close()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notices.C():
				if !ok {
					return
				}
				printNotice(sh.out, n)
			}
		}
	}()

	// Ctrl+C in the terminal interrupts the line, a signal ends the shell
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	fmt.Fprintln(sh.out, "qlcremote shell. 'help' lists commands, 'exit' quits.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := sh.handle(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
	}
}

type shell struct {
	ctx  context.Context
	app  *app.App
	sess *session.Session
	out  io.Writer
}

// handle runs a shell command, or hands the line to the keypad parser when
// the first word is not one.
func (sh *shell) handle(line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	name, args := strings.ToLower(tokens[0]), tokens[1:]
	sess := sh.sess
	ctx := sh.ctx

	switch name {
	case "exit", "quit":
		return errExit
	case "help", "?":
		fmt.Fprintln(sh.out, shellHelp)
	case "page":
		nums, err := parseInts(args, 1, 2)
		if err != nil {
			return err
		}
		page := 0
		if len(nums) == 2 {
			page = nums[1]
		}
		return sess.ViewPage(ctx, nums[0], page)
	case "values":
		printValues(sh.out, sess)
	case "group":
		nums, err := parseInts(args, 1, -1)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "group: %v\n", sess.SelectGroup(nums))
	case "fader":
		nums, err := parseInts(args, 1, 1)
		if err != nil {
			return err
		}
		n, err := sess.SetGroupValue(ctx, nums[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "%d channels written\n", n)
	case "zero":
		_, err := sess.ZeroGroup(ctx)
		return err
	case "cleargroup":
		return sess.ClearGroup(ctx)
	case "flash":
		on, err := parseOnOff(args)
		if err != nil {
			return err
		}
		if on {
			_, err = sess.FlashPress(ctx)
		} else {
			_, err = sess.FlashRelease(ctx)
		}
		return err
	case "effect":
		if len(args) != 1 {
			return errors.New("usage: effect <mode>")
		}
		mode, err := effects.ParseMode(args[0])
		if err != nil {
			return err
		}
		return sess.StartEffect(mode)
	case "cue":
		id := session.DefaultCueWidget
		if len(args) > 0 {
			nums, err := parseInts(args, 1, 1)
			if err != nil {
				return err
			}
			id = nums[0]
		}
		return sess.CueNext(ctx, id)
	case "press", "release":
		nums, err := parseInts(args, 1, 1)
		if err != nil {
			return err
		}
		if name == "press" {
			return sess.PressButton(ctx, nums[0])
		}
		return sess.ReleaseButton(ctx, nums[0])
	case "slider":
		nums, err := parseInts(args, 2, 2)
		if err != nil {
			return err
		}
		return sess.SetSlider(ctx, nums[0], nums[1])
	case "widgets":
		for _, w := range sess.Widgets().List() {
			fmt.Fprintln(sh.out, w)
		}
		if ids := sess.Widgets().Pending(); len(ids) > 0 {
			fmt.Fprintf(sh.out, "pending: %v\n", ids)
		}
		if ids := sess.Widgets().TimedOut(); len(ids) > 0 {
			fmt.Fprintf(sh.out, "timed out: %v\n", ids)
		}
	case "discover":
		return sess.DiscoverWidgets(ctx)
	case "status":
		snap := sess.Snapshot()
		fmt.Fprintf(sh.out, "connection=%s reconnect=%s auto=%t mode=%s effect=%s group=%v\n",
			snap.Connection, snap.Reconnect, snap.AutoRetry, snap.ControlMode, snap.Effect, snap.Group)
	case "retry":
		return sess.Retry(ctx)
	case "disconnect":
		sess.Disconnect()
	case "auto":
		on, err := parseOnOff(args)
		if err != nil {
			return err
		}
		sess.SetAutoRetry(on)
	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <key>")
		}
		v, err := sess.Settings().Current().Get(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, v)
	case "set":
		if len(args) != 2 {
			return errors.New("usage: set <key> <value>")
		}
		_, err := sess.Settings().Set(ctx, args[0], args[1])
		return err
	case "settings":
		cur := sess.Settings().Current()
		for _, key := range settings.Keys {
			v, _ := cur.Get(key)
			fmt.Fprintf(sh.out, "%-18s %s\n", key, v)
		}
	case "history":
		return sh.history(args)
	case "run":
		if len(args) != 1 {
			return errors.New("usage: run <file.lua>")
		}
		return sh.app.Services().Script.Run(ctx, args[0])
	case "log":
		if len(args) != 1 {
			return fmt.Errorf("log level is %s", zerolog.GlobalLevel())
		}
		level, err := zerolog.ParseLevel(strings.ToLower(args[0]))
		if err != nil {
			return err
		}
		zerolog.SetGlobalLevel(level)
	default:
		entry := sess.Execute(ctx, line)
		if entry.Succeeded {
			fmt.Fprintf(sh.out, "ok: %s\n", entry.Command)
		}
	}
	return nil
}

// history prints recent keypad commands oldest first.
func (sh *shell) history(args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.IntP("limit", "n", 20, "Number of entries")
	failed := fs.BoolP("failed", "f", false, "Only failed commands")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: history [-n N] [--failed]: %w", err)
	}
	if fs.NArg() > 0 {
		nums, err := parseInts(fs.Args(), 1, 1)
		if err != nil {
			return err
		}
		*limit = nums[0]
	}

	entries, err := sh.sess.History(*limit)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if *failed && e.Succeeded {
			continue
		}
		mark := " "
		if !e.Succeeded {
			mark = "!"
		}
		fmt.Fprintf(sh.out, "%s %s  %s\n", mark, e.Timestamp.Local().Format(time.TimeOnly), e.Command)
	}
	return nil
}

// parseInts converts args to integers. Commas split an argument further.
// hi < 0 allows any count.
func parseInts(args []string, lo, hi int) ([]int, error) {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return nil, fmt.Errorf("expected %s numbers, got %d", countRange(lo, hi), len(args))
	}
	nums := make([]int, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", part)
			}
			nums = append(nums, n)
		}
	}
	return nums, nil
}

func countRange(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return strconv.Itoa(lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 {
		return false, errors.New("expected on or off")
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "1", "press":
		return true, nil
	case "off", "false", "0", "release":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", args[0])
}

func printNotice(out io.Writer, n session.Notice) {
	fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
}

func printValues(out io.Writer, sess *session.Session) {
	w := sess.Channels().Window()
	values := sess.Channels().Values(w.Universe, w.Start, w.Count)
	printRow(out, w.Universe, w.Start, values)
}

func printRow(out io.Writer, universe, start int, values []int) {
	var b strings.Builder
	fmt.Fprintf(&b, "U%d", universe)
	for i, v := range values {
		if i%12 == 0 {
			fmt.Fprintf(&b, "\n  %3d:", start+i)
		}
		fmt.Fprintf(&b, " %3d", v)
	}
	fmt.Fprintln(out, b.String())
}

func printUpdate(out io.Writer, sess *session.Session, u router.Update) {
	switch u.Kind {
	case router.ChannelsUpdated:
		printRow(out, u.Window.Universe, u.Window.Start, u.Values)
	case router.WidgetsListed:
		fmt.Fprintln(out, "widget list received")
	case router.WidgetResolved, router.WidgetChanged:
		if w, ok := sess.Widgets().Get(u.WidgetID); ok {
			fmt.Fprintln(out, w)
		}
	}
}
