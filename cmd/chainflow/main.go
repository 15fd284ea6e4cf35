package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/eleven-am/chainflow"
)

const usage = `usage: chainflow [flags] <command>

commands:
  serve    run the scheduler and HTTP API (default)
  keygen   print a new Aptos execution private key
  wallet   print the execution wallet address and balance
  fund     request 1 APT from the faucet (testnet and devnet only)

flags:
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "chainflow:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("chainflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := "serve"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}

	if command == "keygen" {
		key, err := chainflow.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, key)
		return nil
	}

	if err := chainflow.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := chainflow.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	cfg.Logger = newLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	slog.SetDefault(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return serve(ctx, cfg)
	case "wallet", "fund":
		cfg.HTTP.Enabled = false
		cfg.Scheduler.Enabled = false
		return walletCommand(ctx, cfg, command, stdout)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func serve(ctx context.Context, cfg *chainflow.Config) error {
	manager, err := chainflow.New(ctx, cfg)
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		_ = manager.Stop()
		return err
	}

	<-ctx.Done()
	cfg.Logger.Info("shutdown signal received")
	return manager.Stop()
}

func walletCommand(ctx context.Context, cfg *chainflow.Config, command string, stdout io.Writer) error {
	manager, err := chainflow.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer manager.Stop()

	if command == "fund" {
		if err := manager.FundWallet(ctx, chainflow.OctasPerAPT); err != nil {
			return err
		}
	}

	info, err := manager.WalletInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "address:   %s\nnetwork:   %s\nbalance:   %d octas\nephemeral: %t\n",
		info.Address, info.Network, info.Balance, info.Ephemeral)
	return nil
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
