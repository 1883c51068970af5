// shuttlectl is a terminal client for the campus shuttle service. Students
// watch live shuttles and board or leave rides; drivers register their
// shuttle, go on and off duty and report positions.
//
// The signed-in session is kept in a file (SHUTTLE_SESSION_FILE or
// --session-file) so successive invocations stay signed in.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"campus_shuttle/internal/backend"
	"campus_shuttle/internal/backend/memory"
	"campus_shuttle/internal/backend/remote"
	"campus_shuttle/internal/config"
	"campus_shuttle/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every command runs against.
type app struct {
	cfg     config.ClientConfig
	backend backend.Backend
	remote  *remote.Client // nil on the in-memory backend
	session *sessionFile
	log     *logrus.Entry
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var backendKind string
	flags := pflag.NewFlagSet("shuttlectl", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&backendKind, "backend", "remote", "backend to use: remote or memory (offline, nothing is kept)")
	flags.StringVar(&cfg.Client.BackendURL, "url", cfg.Client.BackendURL, "server base URL")
	flags.StringVar(&cfg.Client.SessionFile, "session-file", cfg.Client.SessionFile, "where the signed-in session is kept")
	flags.BoolVar(&cfg.Client.DemoShuttles, "demo", cfg.Client.DemoShuttles, "show demonstration shuttles when none are active")
	flags.DurationVar(&cfg.Client.RequestTimeout, "timeout", cfg.Client.RequestTimeout, "per-request timeout")
	flags.StringVar(&cfg.Logging.Level, "log-level", "warn", "log level written to stderr")
	flags.Usage = func() { printUsage(flags) }
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		printUsage(flags)
		return pflag.ErrHelp
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(level)

	a := &app{cfg: cfg.Client, log: logger.Component("shuttlectl")}
	switch backendKind {
	case "remote":
		client, err := remote.New(remote.Options{BaseURL: cfg.Client.BackendURL, Log: logger.Component("remote")})
		if err != nil {
			return err
		}
		a.backend, a.remote = client, client
		a.session = &sessionFile{path: cfg.Client.SessionFile}
		if s, err := a.session.Load(); err != nil {
			a.log.WithError(err).Warn("Ignoring unreadable session file")
		} else if s != nil {
			client.RestoreSession(s)
		}
	case "memory":
		a.backend = memory.New()
		a.session = &sessionFile{}
	default:
		return fmt.Errorf("unknown backend %q (want remote or memory)", backendKind)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := flags.Arg(0), flags.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q; run shuttlectl --help", cmd)
	}
	return handler(ctx, a, rest)
}

func printUsage(flags *pflag.FlagSet) {
	names := make([]string, 0, len(commandHelp))
	for _, h := range commandHelp {
		names = append(names, "  "+h)
	}
	fmt.Fprintf(os.Stderr, `shuttlectl: campus shuttle client

Usage:
  shuttlectl [flags] <command> [args]

Commands:
%s

Flags:
`, strings.Join(names, "\n"))
	flags.SetOutput(os.Stderr)
	flags.PrintDefaults()
}
