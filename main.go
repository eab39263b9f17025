package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"gitnext/internal/broadcast"
	"gitnext/internal/config"
	"gitnext/internal/forge"
	"gitnext/internal/github"
	"gitnext/internal/logger"
	"gitnext/internal/pipeline"
	"gitnext/internal/protocol"
	"gitnext/internal/store"
	"gitnext/internal/transport"
	"gitnext/internal/tui"
)

const version = "1.0.0"

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	debug    bool
	backbone string
	port     int
	version  bool
	help     bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("gitnext", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.debug, "debug", false, "print pipeline events instead of starting the UI")
	flagSet.StringVar(&opts.backbone, "backbone", "", "override the configured backbone (network or loopback)")
	flagSet.IntVar(&opts.port, "port", 0, "override the well-known server port")
	flagSet.BoolVar(&opts.version, "version", false, "print the version")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if opts.help {
		printHelp(flagSet)
		return nil
	}
	if opts.version {
		fmt.Println("gitnext", version)
		return nil
	}

	args := flagSet.Args()
	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	if len(args) > 1 {
		return fmt.Errorf("unexpected argument: %s", args[1])
	}
	if opts.debug && command == "" {
		command = "debug"
	}

	env, err := config.ReadEnv()
	if err != nil {
		return err
	}
	if opts.port != 0 {
		env.Port = opts.port
	}
	if command == "serve" {
		env.Logger.Stderr = true
	}

	log, err := logger.New(&env.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(env.ConfigPath)

	switch command {
	case "init":
		return initConfig(loader)
	case "serve":
		return serve(ctx, env, loader, log)
	case "debug":
		return debug(ctx, env, loader, log)
	case "":
		return browse(ctx, env, loader, opts.backbone, log)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `gitnext shows the pull requests that need you next.

Usage:
  gitnext [flags]          open the terminal UI
  gitnext init             write the default config file
  gitnext serve            run the background server until interrupted
  gitnext debug            run one load and print every event as JSON

Flags:
%s`, flagSet.FlagUsages())
}

func newController(env *config.Env, loader *config.Loader, log *zap.Logger) *broadcast.Controller {
	gh := forge.NewGitHub(env.GitHubToken)
	client := github.NewClient(env.GraphQLURL, nil, log.Named("github"))
	p := pipeline.New(loader, gh, gh, client, store.NewMemory(), log.Named("pipeline"))
	return broadcast.New(p, log.Named("broadcast"))
}

func initConfig(loader *config.Loader) error {
	if err := loader.Init(); err != nil {
		return err
	}
	fmt.Println("wrote", loader.Path)
	return nil
}

// settings reads the backbone and renderer from the config file. A missing
// or broken file falls back to the defaults; the pipeline seeds the file and
// reports the problem.
func settings(loader *config.Loader, override string, log *zap.Logger) (config.Settings, error) {
	s := config.Settings{Renderer: config.RendererTerminal, Backbone: config.BackboneNetwork}
	cfg, err := loader.Load()
	switch {
	case errors.Is(err, config.ErrNotFound):
		log.Debug("no configuration yet, using default settings", zap.String("path", loader.Path))
	case err != nil:
		log.Warn("using default settings", zap.Error(err))
	default:
		s = cfg.Settings
	}

	switch config.Backbone(override) {
	case "":
	case config.BackboneNetwork, config.BackboneLoopback:
		s.Backbone = config.Backbone(override)
	default:
		return s, fmt.Errorf("unknown backbone %q", override)
	}
	return s, nil
}

func browse(ctx context.Context, env *config.Env, loader *config.Loader, backbone string, log *zap.Logger) error {
	s, err := settings(loader, backbone, log)
	if err != nil {
		return err
	}
	if s.Renderer == config.RendererWeb {
		return errors.New("the web renderer is not supported, set renderer: terminal")
	}

	controller := newController(env, loader, log)
	go controller.Run(ctx)

	factory, err := transport.NewFactory(ctx, s.Backbone, env.Port, controller, log.Named("transport"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := factory.Close(shutdownCtx); err != nil {
			log.Warn("closing transport", zap.Error(err))
		}
	}()

	conn, err := factory.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info("starting ui", zap.String("backbone", string(s.Backbone)))
	return tui.Run(conn)
}

func serve(ctx context.Context, env *config.Env, loader *config.Loader, log *zap.Logger) error {
	found, err := transport.Discover(ctx, transport.Localhost, env.Port, log.Named("transport"))
	if err != nil {
		return err
	}
	if found.Listener == nil {
		fmt.Println("gitnext is already running at", found.ExistingURL)
		return nil
	}

	controller := newController(env, loader, log)
	go controller.Run(ctx)

	server := transport.NewServer(controller, found.Listener, log.Named("transport"))
	served := make(chan error, 1)
	go func() { served <- server.Serve() }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Close(shutdownCtx); err != nil {
		return err
	}
	return <-served
}

func debug(ctx context.Context, env *config.Env, loader *config.Loader, log *zap.Logger) error {
	controller := newController(env, loader, log)
	go controller.Run(ctx)

	factory := transport.NewLoopback(controller, log.Named("transport"))
	defer factory.Close(context.Background())

	conn, err := factory.Connect(ctx)
	if err != nil {
		return err
	}
	if err := conn.Send(protocol.Event(protocol.LoadData)); err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	for {
		select {
		case m, ok := <-conn.Messages():
			if !ok {
				return transport.ErrClosed
			}
			if err := out.Encode(m); err != nil {
				return err
			}
			if m.Terminal() {
				if m.Type == protocol.Error {
					return errors.New(m.Error)
				}
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
