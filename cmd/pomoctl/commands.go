package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pomodoro"
	"pomodoro/ipc"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	Socket  string
	WSURL   string
	JSON    bool
	Timeout time.Duration
}

func addGlobalArgs(cmd *cobra.Command, o *globalOptions) {
	cmd.PersistentFlags().StringVarP(&o.Socket, "socket", "s", "/tmp/pomodorod.sock",
		"Unix domain socket of the daemon.")
	cmd.PersistentFlags().StringVar(&o.WSURL, "ws-url", "ws://127.0.0.1:3011/ws",
		"State websocket URL (watch only).")
	cmd.PersistentFlags().BoolVar(&o.JSON, "json", false,
		"Print raw JSON instead of a summary.")
	cmd.PersistentFlags().DurationVar(&o.Timeout, "timeout", 5*time.Second,
		"How long to wait for the daemon.")
}

// sender is swapped in tests.
type sender func(ctx context.Context, socketPath string, cmd pomodoro.Command) (pomodoro.Response, error)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(ipc.Send)
}

func newRootCommandWith(send sender) *cobra.Command {
	o := &globalOptions{}

	root := &cobra.Command{
		Use:           "pomoctl",
		Short:         "Control a running pomodorod",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalArgs(root, o)

	simple := []struct {
		use, short string
		cmd        pomodoro.Command
	}{
		{"state", "Show the current timer state", pomodoro.GetState{}},
		{"toggle", "Start, pause or resume the timer", pomodoro.Toggle{}},
		{"skip", "Jump to the next phase", pomodoro.Skip{}},
		{"reset", "Back to a paused focus phase with no sessions", pomodoro.Reset{}},
		{"stop", "Stop the timer and forget completed sessions", pomodoro.Stop{}},
	}
	for _, s := range simple {
		c := s.cmd
		root.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCommand(cmd.Context(), cmd.OutOrStdout(), o, send, c)
			},
		})
	}

	root.AddCommand(newSettingsCommand(o, send))
	root.AddCommand(newWatchCommand(o))
	return root
}

// runCommand sends cmd and prints the response.
func runCommand(ctx context.Context, w io.Writer, o *globalOptions, send sender, cmd pomodoro.Command) error {
	resp, err := sendWithTimeout(ctx, o, send, cmd)
	if err != nil {
		return err
	}
	return printResponse(w, o, resp)
}

func sendWithTimeout(ctx context.Context, o *globalOptions, send sender, cmd pomodoro.Command) (pomodoro.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	resp, err := send(ctx, o.Socket, cmd)
	if err != nil {
		return pomodoro.Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("%s: %s", cmd.CommandType(), resp.Error)
	}
	return resp, nil
}

func printResponse(w io.Writer, o *globalOptions, resp pomodoro.Response) error {
	if o.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if resp.State == nil || resp.Settings == nil {
		return errors.New("daemon returned no state")
	}
	_, err := fmt.Fprintln(w, formatState(*resp.State, *resp.Settings))
	return err
}

// settingsOptions holds the settings flags. Only flags the user changed are
// sent; the rest keep their current values.
type settingsOptions struct {
	Focus      int
	ShortBreak int
	LongBreak  int
	LongEvery  int
	Intervals  int
	Sound      bool
}

func addSettingsArgs(cmd *cobra.Command, o *settingsOptions) {
	cmd.Flags().IntVar(&o.Focus, "focus", 0, "Focus minutes (1-180).")
	cmd.Flags().IntVar(&o.ShortBreak, "short-break", 0, "Short break minutes (1-60).")
	cmd.Flags().IntVar(&o.LongBreak, "long-break", 0, "Long break minutes (1-120).")
	cmd.Flags().IntVar(&o.LongEvery, "long-every", 0, "Long break after this many focus sessions (2-12).")
	cmd.Flags().IntVar(&o.Intervals, "intervals", 0, "Focus sessions per run (1-30).")
	cmd.Flags().BoolVar(&o.Sound, "sound", true, "Ask notifiers to play a sound.")
}

func newSettingsCommand(o *globalOptions, send sender) *cobra.Command {
	so := &settingsOptions{}

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change timer settings",
		Long: "Without flags, print the current settings. With flags, change only the\n" +
			"given settings. Out-of-range values are clamped by the daemon.",
		Example: `
pomoctl settings
pomoctl settings --focus 50 --short-break 10
pomoctl settings --sound=false
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := sendWithTimeout(cmd.Context(), o, send, pomodoro.GetState{})
			if err != nil {
				return err
			}
			if current.Settings == nil {
				return errors.New("daemon returned no settings")
			}

			changed := overlaySettings(*current.Settings, so, cmd.Flags().Changed)
			if changed == nil {
				return printSettings(cmd.OutOrStdout(), o, *current.Settings)
			}

			resp, err := sendWithTimeout(cmd.Context(), o, send, pomodoro.UpdateSettings{Settings: changed})
			if err != nil {
				return err
			}
			if resp.Settings == nil {
				return errors.New("daemon returned no settings")
			}
			return printSettings(cmd.OutOrStdout(), o, *resp.Settings)
		},
	}
	addSettingsArgs(cmd, so)
	return cmd
}

// overlaySettings returns the full settings object to send, or nil when no
// flag was changed. Updates replace settings wholesale, so unchanged fields
// must carry their current values.
func overlaySettings(current pomodoro.Settings, so *settingsOptions, changed func(string) bool) map[string]any {
	m := current.Map()
	dirty := false
	set := func(flag, key string, v any) {
		if changed(flag) {
			m[key] = v
			dirty = true
		}
	}
	set("focus", "focusMinutes", so.Focus)
	set("short-break", "shortBreakMinutes", so.ShortBreak)
	set("long-break", "longBreakMinutes", so.LongBreak)
	set("long-every", "longBreakEvery", so.LongEvery)
	set("intervals", "runIntervals", so.Intervals)
	set("sound", "soundEnabled", so.Sound)
	if !dirty {
		return nil
	}
	return m
}

func printSettings(w io.Writer, o *globalOptions, s pomodoro.Settings) error {
	if o.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, err := fmt.Fprintln(w, formatSettings(s))
	return err
}
