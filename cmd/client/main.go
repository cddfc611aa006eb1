package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/GriffinCanCode/consolechannel/internal/channel"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/config"
	"github.com/GriffinCanCode/consolechannel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/consolechannel/internal/transport"
	"github.com/GriffinCanCode/consolechannel/internal/wire"
)

// extraFlag collects repeated -extra key=value flags.
type extraFlag map[string]string

func (e extraFlag) String() string {
	pairs := make([]string, 0, len(e))
	for k, v := range e {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (e extraFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	e[key] = val
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		fmt.Fprintln(os.Stderr, "console: using defaults:", err)
	}
	clientCfg := cfg.Client
	extra := extraFlag{}

	url := flag.String("url", "", "Channel base URL (overrides profile and CLIENT_URL)")
	profilePath := flag.String("profile", "", "YAML or TOML profile")
	logPath := flag.String("log", "", "Write debug logs to this file")
	flag.Var(extra, "extra", "Extra parameter key=value sent with every request (repeatable)")
	flag.Parse()

	if *profilePath != "" {
		profile, err := config.LoadProfile(*profilePath)
		if err != nil {
			return err
		}
		profile.Apply(&clientCfg)
		for k, v := range profile.Extra {
			if _, set := extra[k]; !set {
				extra[k] = v
			}
		}
	}
	if *url != "" {
		clientCfg.URL = *url
	}
	if !strings.HasSuffix(clientCfg.URL, "/") {
		clientCfg.URL += "/"
	}

	logger := &logging.Logger{Logger: zap.NewNop()}
	if *logPath != "" {
		logger, err = logging.New(logging.Config{Level: "debug", OutputPaths: []string{*logPath}})
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	tcfg := transport.DefaultConfig()
	tcfg.Timeout = clientCfg.Timeout
	tcfg.RateLimit = clientCfg.RateLimit
	tcfg.Username = clientCfg.User
	tcfg.Password = clientCfg.Password
	tr, err := transport.NewHTTP(tcfg, logger.Named("transport"))
	if err != nil {
		return err
	}

	ch, err := channel.New(tr, clientCfg.URL, extra,
		channel.WithLogger(logger.Named("channel")),
		channel.WithWriteErrorHandler(func(data string, err error) {
			logger.Warn("Keystrokes lost", zap.Int("bytes", len(data)), zap.Error(err))
		}),
	)
	if err != nil {
		return err
	}
	logger.Session(ch.SessionID()).Info("Connecting", zap.String("url", clientCfg.URL))

	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		state, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer term.Restore(stdin, state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reportSize(ch)
	stopResize := watchResize(ctx, func() { reportSize(ch) })
	defer stopResize()

	go forwardInput(os.Stdin, ch.Write, logger.Logger)

	err = ch.ReadLoop(ctx, os.Stdout)
	logger.Debug("Read loop ended", zap.Stringer("breaker", tr.BreakerState()), zap.Error(err))
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 410 {
		return nil // session ended
	}
	return err
}

// reportSize sends the current window size, if stdout is a terminal.
func reportSize(ch *channel.Channel) {
	columns, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return
	}
	ch.SetSize(columns, rows)
}

// forwardInput copies r to write, holding back a rune split across reads
// until the rest of it arrives. Bytes that can never form valid UTF-8 are
// replaced with U+FFFD.
func forwardInput(r io.Reader, write func(string) error, logger *zap.Logger) {
	buf := make([]byte, 1024)
	pending := 0
	for {
		n, err := r.Read(buf[pending:])
		n += pending

		complete := n
		if err == nil {
			complete = wire.CompleteLen(buf[:n])
		}
		if complete > 0 {
			data := string(buf[:complete])
			if !utf8.ValidString(data) {
				logger.Debug("Replacing invalid input bytes", zap.Int("bytes", complete))
				data = strings.ToValidUTF8(data, string(utf8.RuneError))
			}
			if werr := write(data); werr != nil {
				logger.Warn("Failed to send input", zap.Error(werr))
			}
		}
		pending = copy(buf, buf[complete:n])

		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("Failed to read input", zap.Error(err))
			}
			return
		}
	}
}
