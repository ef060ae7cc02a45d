package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fundportal/config"
	"fundportal/internal/portal"
	"fundportal/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:          "portal",
	Short:        "Fund portal client for an Ethereum node",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		// viper config
		if cfg, err = config.Load(cmd.Flags()); err != nil {
			return err
		}
		// zap logger
		if log, err = logger.New(cfg.Log); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("env", "", "environment: dev or prod")
	flags.String("rpc-url", "", "JSON-RPC endpoint of the node (http, ws or ipc path)")
	flags.String("ws-url", "", "WebSocket endpoint used for newHeads subscriptions")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(watchCmd, statusCmd, balanceCmd, transferCmd, subscribeCmd, journalCmd)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withPortal builds the client, runs the startup checks and hands it to fn.
func withPortal(ctx context.Context, fn func(*portal.Portal) error) error {
	p, err := portal.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()
	if err := p.Startup(ctx); err != nil {
		log.Warn("startup checks reported errors", zap.Error(err))
	}
	return fn(p)
}

func parseAddress(name, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, s)
	}
	return common.HexToAddress(s), nil
}
