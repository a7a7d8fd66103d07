package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"supportdesk/ui/api"
	"supportdesk/ui/desk"
)

const appVersion = "v1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	apiURL     string
	stateDir   string
	sessionID  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "supportdesk",
		Short:        "Terminal dashboard for answering support chats",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), opts, false)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a TOML or YAML config file")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "support API base URL (overrides config)")
	root.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "directory for session logs and summaries")
	root.PersistentFlags().StringVar(&opts.sessionID, "session-id", "", "override session id (for dev sessions)")

	root.AddCommand(newServeCmd(opts), newSmokeCmd(opts), newBusCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a headless session driven by the command bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd.Context(), opts, true)
		},
	}
}

func newSmokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Run a deterministic offline session against built-in fixtures",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(opts)
			if err != nil {
				return err
			}
			defer s.events.Close()

			outDir := os.Getenv("SUPPORTDESK_SMOKE_OUT_DIR")
			if strings.TrimSpace(outDir) == "" {
				outDir = filepath.Join(s.cfg.StateDir, "verify", "tui", fmt.Sprintf("run_%d", time.Now().UnixMilli()))
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			report := runSmoke(cmd.Context(), s.appConfig(), s.logger())
			_ = os.WriteFile(filepath.Join(outDir, "view.txt"), []byte(report.view+"\n"), 0o644)
			_ = os.WriteFile(filepath.Join(outDir, "summary.json"), []byte(report.json+"\n"), 0o644)
			writeSessionSummary(report.final)
			if err := report.err(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "tui-smoke-ok")
			return nil
		},
	}
}

func newBusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cmd <open|reply|send|compose|refresh|key|stop> [arg]",
		Short: "Append a command to a running session's command bus",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseBusArgs(args)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			stateDir := cfg.StateDir
			if opts.stateDir != "" {
				stateDir = opts.stateDir
			}
			sid := strings.TrimSpace(opts.sessionID)
			if sid == "" {
				sid = readCurrentSessionID(stateDir)
			}
			if sid == "" {
				return errors.New("no session: pass --session-id or start a session first")
			}
			path := filepath.Join(stateDir, sid, "commands.jsonl")
			if err := appendBusCommand(path, c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s for %s\n", c.Type, sid)
			return nil
		},
	}
}

func parseBusArgs(args []string) (busCommand, error) {
	if len(args) == 0 {
		return busCommand{}, errors.New("missing command type")
	}
	c := busCommand{Version: 1, Type: strings.ToLower(strings.TrimSpace(args[0])), Source: "cli"}
	arg := ""
	if len(args) > 1 {
		arg = args[1]
	}
	switch c.Type {
	case "open":
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil {
			return busCommand{}, fmt.Errorf("open: invalid user id %q", arg)
		}
		c.UserID = id
	case "reply", "send":
		if strings.TrimSpace(arg) == "" {
			return busCommand{}, fmt.Errorf("%s: text is required", c.Type)
		}
		c.Text = arg
	case "key":
		if strings.TrimSpace(arg) == "" {
			return busCommand{}, errors.New("key: keys are required")
		}
		c.Keys = arg
	case "compose", "refresh", "stop":
	default:
		return busCommand{}, fmt.Errorf("unknown command type %q", c.Type)
	}
	return c, nil
}

// session is the per-run state shared by every mode.
type session struct {
	cfg        Config
	configPath string
	id         string
	events     *eventLog
}

func openSession(opts *rootOptions) (*session, error) {
	cfg, used, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.apiURL != "" {
		cfg.API.BaseURL = opts.apiURL
	}
	if opts.stateDir != "" {
		cfg.StateDir = opts.stateDir
	}

	sessionID := strings.TrimSpace(opts.sessionID)
	if sessionID == "" {
		// Default behavior: start a new session unless explicitly asked to resume.
		if envBool("SUPPORTDESK_RESUME") {
			sid, _ := getOrCreateSessionID(cfg.StateDir)
			sessionID = sid
		} else {
			sid, _ := createNewSessionID(cfg.StateDir)
			_ = setCurrentSessionID(cfg.StateDir, sid)
			sessionID = sid
		}
	}

	level, _ := parseLogLevel(cfg.Log.Level)
	events, err := openEventLog(cfg.StateDir, sessionID, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "supportdesk: event log disabled: %v\n", err)
		events = discardEventLog()
	}
	slog.SetDefault(events.logger)
	events.logger.Info("session.start", "config", used, "api", cfg.API.BaseURL, "version", appVersion)

	return &session{cfg: cfg, configPath: used, id: sessionID, events: events}, nil
}

func (s *session) logger() *slog.Logger {
	return s.events.logger
}

func (s *session) appConfig() appConfig {
	return appConfig{
		stateDir:     s.cfg.StateDir,
		sessionID:    s.id,
		commandsPath: filepath.Join(s.cfg.StateDir, s.id, "commands.jsonl"),
		apiURL:       s.cfg.API.BaseURL,
		version:      appVersion,
	}
}

// runDashboard runs the program and the poller side by side; whichever
// stops first takes the other down.
func runDashboard(parent context.Context, opts *rootOptions, headless bool) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.events.Close()
	logger := s.logger()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(s.cfg.API.BaseURL,
		api.WithTimeout(s.cfg.API.Timeout),
		api.WithLogger(logger),
	)
	view := newTeaView()
	ctrl := desk.New(client, view, desk.Config{
		Logger:       logger,
		ToastVisible: s.cfg.Toast.Visible,
		ToastFade:    s.cfg.Toast.Fade,
	})
	defer ctrl.Close()

	acfg := s.appConfig()
	acfg.ctx = ctx
	acfg.staticCursor = headless
	m := newAppModel(acfg, ctrl, logger)

	progOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if headless {
		progOpts = append(progOpts,
			tea.WithoutRenderer(),
			tea.WithInput(bytes.NewReader(nil)),
			tea.WithOutput(io.Discard),
		)
	} else {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(m, progOpts...)
	go view.attach(p.Send)

	g, gctx := errgroup.WithContext(ctx)
	pollCtx, stopPoll := context.WithCancel(gctx)
	defer stopPoll()

	poller := desk.NewPoller(ctrl, s.cfg.Poll.Interval)
	g.Go(func() error {
		if err := poller.Run(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	var final tea.Model
	g.Go(func() error {
		defer stopPoll()
		var err error
		final, err = p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	if am, ok := final.(appModel); ok {
		writeSessionSummary(am)
	}
	logger.Info("session.end", "error", errString(err))
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func newSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func currentSessionPath(stateDir string) string {
	return filepath.Join(stateDir, "state", "current.json")
}

func readCurrentSessionID(stateDir string) string {
	raw, err := os.ReadFile(currentSessionPath(stateDir))
	if err != nil {
		return ""
	}
	var current map[string]any
	if err := json.Unmarshal(raw, &current); err != nil {
		return ""
	}
	if v, ok := current["sessionId"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func getOrCreateSessionID(stateDir string) (string, error) {
	if id := readCurrentSessionID(stateDir); id != "" {
		return id, nil
	}
	id := newSessionID()
	return id, setCurrentSessionID(stateDir, id)
}

func createNewSessionID(stateDir string) (string, error) {
	id := newSessionID()
	// Ensure directory exists eagerly.
	return id, os.MkdirAll(filepath.Join(stateDir, id), 0o755)
}

func setCurrentSessionID(stateDir string, sessionID string) error {
	currentPath := currentSessionPath(stateDir)
	_ = os.MkdirAll(filepath.Dir(currentPath), 0o755)

	var current map[string]any
	if raw, err := os.ReadFile(currentPath); err == nil {
		_ = json.Unmarshal(raw, &current)
	}
	if current == nil {
		current = map[string]any{"schemaVersion": 1}
	}
	current["sessionId"] = sessionID
	current["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	b, _ := json.MarshalIndent(current, "", "  ")
	return os.WriteFile(currentPath, append(b, '\n'), 0o644)
}
