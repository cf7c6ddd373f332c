// Command cfkd is the supervisor daemon: it loads a config file, drives the
// controller, and serves the admin endpoint (spec §4.4) plus the optional
// observability surface (spec §4.6).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/controlfreak/cfkd/internal/admin"
	"github.com/controlfreak/cfkd/internal/config"
	"github.com/controlfreak/cfkd/internal/constants"
	"github.com/controlfreak/cfkd/internal/controller"
	"github.com/controlfreak/cfkd/internal/dispatch"
	"github.com/controlfreak/cfkd/internal/httpapi"
	"github.com/controlfreak/cfkd/internal/supervise"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cfkd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		homeFlag   = flag.String("home", "", "supervisor home directory (default: $"+constants.HomeEnvVar+" or ~/"+constants.DefaultHomeDirName)
		configFlag = flag.String("config", "", "config file path (default: <home>/cfkd.conf)")
	)
	flag.Parse()

	home, err := resolveHome(*homeFlag)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("creating home directory %s: %w", home, err)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if env, err := config.LoadEnvFile(filepath.Join(home, ".env")); err == nil {
		for k, v := range env {
			if _, set := os.LookupEnv(k); !set {
				os.Setenv(k, v)
			}
		}
	}

	ctl := controller.New(home)
	defer ctl.StopActor()

	configPath := *configFlag
	if configPath == "" {
		configPath, err = config.FindConfigFile(home)
		if err != nil {
			return err
		}
	}

	ctl.SetReloadFunc(func() error {
		log.Info().Str("path", configPath).Msg("reloading config")
		return config.Load(configPath, home, ctl)
	})
	if err := config.Load(configPath, home, ctl); err != nil {
		return fmt.Errorf("loading config %s: %w", configPath, err)
	}

	dispatchFunc := func(line string, hasPriv bool) string {
		return dispatch.Dispatch(ctl, line, hasPriv)
	}

	console := ctl.Console()
	sockPath := ""
	if console.Port == 0 {
		sockPath = filepath.Join(home, constants.DefaultSockName)
	}
	adminCfg := admin.ParseListenSpec(console.Host, console.Port, sockPath, console.Full)
	adminServer := admin.New(adminCfg, dispatchFunc, log.With().Str("component", "admin").Logger())

	tree := supervise.NewTree(slog.New(slog.NewTextHandler(os.Stderr, nil)), supervise.DefaultTreeConfig())
	tree.AddSurface(adminServer)

	// spec §6: HUP, INT and TERM all initiate a clean shutdown; USR1 alone
	// requests a log-configuration reinit (watchReload below).
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if console.HTTPAddr != "" {
		handlers := httpapi.NewHandlers(ctl, cancel, log.With().Str("component", "httpapi").Logger())
		httpHost, httpPort, err := parseHostPort(console.HTTPAddr)
		if err != nil {
			return fmt.Errorf("parsing console http_addr %q: %w", console.HTTPAddr, err)
		}
		httpServer := httpapi.NewServer(httpapi.Config{Host: httpHost, Port: httpPort}, handlers)
		tree.AddSurface(httpServer)
	}

	go watchReload(ctx, ctl, log)

	log.Info().Str("home", home).Str("config", configPath).Msg("cfkd starting")
	if err := tree.Serve(ctx); err != nil {
		return fmt.Errorf("supervision tree: %w", err)
	}

	if err := ctl.Shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	return nil
}

// watchReload drives `reload_config` (§4.4) from SIGUSR1 without going
// through the admin endpoint, the same way a privileged admin connection
// would. HUP is handled separately (it shuts the daemon down, per §6).
func watchReload(ctx context.Context, ctl *controller.Controller, log zerolog.Logger) {
	sigusr1 := make(chan os.Signal, 1)
	signal.Notify(sigusr1, syscall.SIGUSR1)
	defer signal.Stop(sigusr1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigusr1:
			if err := ctl.ReloadConfig(); err != nil {
				log.Error().Err(err).Msg("reload_config")
			}
		}
	}
}

func resolveHome(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(constants.HomeEnvVar); env != "" {
		return env, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default home directory: %w", err)
	}
	return filepath.Join(dir, constants.DefaultHomeDirName), nil
}

func parseHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
