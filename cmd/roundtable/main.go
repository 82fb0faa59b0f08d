package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"roundtable/internal/adapter/gateway"
	"roundtable/internal/domain"
	"roundtable/internal/infra/config"
	"roundtable/internal/infra/logger"
	"roundtable/internal/infra/tracer"
	"roundtable/internal/usecase/debate"
	"roundtable/internal/usecase/eventbus"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := runServe(os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(args)
	case "models":
		err = runModels(args, os.Stdout)
	case "ask":
		err = runAsk(args, os.Stdout)
	case "encrypt":
		err = runEncrypt(args, os.Stdout)
	case "doctor":
		err = runDoctor(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'roundtable --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`roundtable - multi-model debate server

USAGE:
    roundtable [COMMAND] [FLAGS]

COMMANDS:
    serve       Run the HTTP server (default when no command is given)
    models      List configured participants and whether they are available
    ask         Run one debate and write the event stream to stdout
    encrypt     Encrypt a secret for use as "enc:..." in config.yaml
    doctor      Run health checks on your setup

FLAGS:
    -h, --help          Show this help message
    --config PATH       Config file path (default: ./config.yaml, or $ROUNDTABLE_CONFIG)
    --addr HOST:PORT    Listen address (serve)
    --models a,b,c      Participant ids, comma separated (ask; default: all)
    --rounds N          Number of rounds (ask; default: debate.default_rounds)
    --thinking          Stream reasoning tokens where supported (ask)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: ROUNDTABLE_* variables override config; provider keys are read
                 from ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY,
                 XAI_API_KEY, GROQ_API_KEY, OPENROUTER_API_KEY (.env is loaded)

EXAMPLES:
    roundtable                                   # Serve on 127.0.0.1:8000
    roundtable serve --addr 0.0.0.0:9000
    roundtable models
    roundtable ask "Is mathematics discovered or invented?" --models claude,gpt --rounds 3
    ROUNDTABLE_CONFIG_KEY=pass roundtable encrypt sk-ant-...`)
}

// cliFlags holds the flags shared by the subcommands.
type cliFlags struct {
	Config   string
	Addr     string
	Models   string
	Rounds   int
	Thinking bool
	Args     []string
}

// parseFlags extracts known flags from args; everything else is positional.
func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	value := func(i *int, name string) (string, error) {
		arg := args[*i]
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, nil
		}
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, _, _ := strings.Cut(arg, "=")
		var err error
		switch name {
		case "--config":
			f.Config, err = value(&i, name)
		case "--addr":
			f.Addr, err = value(&i, name)
		case "--models":
			f.Models, err = value(&i, name)
		case "--rounds":
			var v string
			if v, err = value(&i, name); err == nil {
				f.Rounds, err = strconv.Atoi(v)
				if err != nil {
					err = fmt.Errorf("--rounds: %q is not an integer", v)
				}
			}
		case "--thinking":
			f.Thinking = true
		default:
			if strings.HasPrefix(arg, "--") {
				err = fmt.Errorf("unknown flag %s", name)
			} else {
				f.Args = append(f.Args, arg)
			}
		}
		if err != nil {
			return cliFlags{}, err
		}
	}
	return f, nil
}

func configPath(f cliFlags) string {
	if f.Config != "" {
		return f.Config
	}
	if p := os.Getenv("ROUNDTABLE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// app bundles the components every command needs.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	bus    *eventbus.Bus
	roster *Roster
	driver *debate.Driver
	close  func()
}

func newApp(ctx context.Context, f cliFlags) (*app, error) {
	cfg, err := config.Load(configPath(f))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if f.Addr != "" {
		cfg.Server.Addr = f.Addr
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	roster, err := buildRoster(ctx, cfg, log)
	if err != nil {
		_ = tracerShutdown(ctx)
		logCloser()
		return nil, fmt.Errorf("participants: %w", err)
	}

	bus := eventbus.New(log)
	orch := debate.NewOrchestrator(debate.OrchestratorDeps{
		Logger:      log,
		Bus:         bus,
		TurnTimeout: cfg.Debate.TurnTimeout,
	})
	driver := debate.NewDriver(debate.DriverDeps{
		Registry:      roster.Participants,
		Orchestrator:  orch,
		Logger:        log,
		Bus:           bus,
		SystemPrompt:  cfg.Debate.SystemPrompt,
		DefaultRounds: cfg.Debate.DefaultRounds,
		MaxRounds:     cfg.Debate.MaxRounds,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		bus:    bus,
		roster: roster,
		driver: driver,
		close: func() {
			bus.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerShutdown(shutdownCtx)
			logCloser()
		},
	}, nil
}

func runServe(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}
	defer a.close()

	a.roster.warmup(ctx, a.log)

	srv := gateway.NewServer(gateway.ServerDeps{
		Driver: a.driver,
		Bus:    a.bus,
		Logger: a.log,
		Config: a.cfg.Server,
	})

	available := 0
	for _, p := range a.roster.Participants.All() {
		if p.Available {
			available++
		}
	}
	a.log.Info("roundtable starting",
		"addr", a.cfg.Server.Addr,
		"participants", a.roster.Participants.Len(),
		"available", available,
	)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.log.Info("roundtable stopped")
	return nil
}

func runModels(args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	a, err := newApp(context.Background(), f)
	if err != nil {
		return err
	}
	defer a.close()

	return printModels(out, a.roster.Participants)
}

func printModels(out io.Writer, reg *debate.Registry) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROVIDER\tMODEL\tAVAILABLE")
	for _, p := range reg.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", p.ID, p.Name, p.Provider, p.Model, p.Available)
	}
	return tw.Flush()
}

func runAsk(args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(f.Args, " "))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, f)
	if err != nil {
		return err
	}
	defer a.close()

	rounds := f.Rounds
	if rounds == 0 {
		rounds = a.driver.DefaultRounds()
	}
	sess, err := a.driver.NewSession(debate.Params{
		Question: question,
		Models:   debate.SplitModels(f.Models),
		Rounds:   rounds,
		Thinking: f.Thinking,
	})
	if err != nil {
		return err
	}

	return streamSession(ctx, a.driver, sess, out)
}

// streamSession runs sess and writes its SSE frames to out.
func streamSession(ctx context.Context, driver *debate.Driver, sess *debate.Session, out io.Writer) error {
	var writeErr error
	driver.Run(ctx, sess, func(o domain.Output) {
		if writeErr != nil {
			return
		}
		frame, err := gateway.Encode(o)
		if err != nil {
			writeErr = err
			return
		}
		_, writeErr = out.Write(frame)
	})
	return writeErr
}

func runEncrypt(args []string, out io.Writer) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(f.Args) != 1 {
		return fmt.Errorf("usage: roundtable encrypt <secret>")
	}
	passphrase := os.Getenv("ROUNDTABLE_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("ROUNDTABLE_CONFIG_KEY must be set")
	}
	enc, err := config.EncryptValue(f.Args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "enc:%s\n", enc)
	return nil
}
