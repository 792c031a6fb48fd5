package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PuraVida-Technologies/galoy/internal/config"
	"github.com/PuraVida-Technologies/galoy/internal/infra"
	"github.com/PuraVida-Technologies/galoy/internal/lock"
	"github.com/PuraVida-Technologies/galoy/internal/logging"
)

var (
	probeTTL  time.Duration
	probeHold time.Duration

	lockCmd = &cobra.Command{
		Use:   "lock",
		Short: "Inspect the wallet lock quorum",
	}

	probeCmd = &cobra.Command{
		Use:   "probe [path]",
		Short: "Acquire, extend and release a lock on path",
		Long: `Acquires a lock on path against the configured LOCK_REDIS_URLS, extends
it once and releases it, printing the outcome of every step. Useful to check
that a quorum of lock nodes is reachable from this host.`,
		Args: cobra.ExactArgs(1),
		RunE: runProbe,
	}
)

func init() {
	lockCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTTL, "ttl", 5*time.Second, "Lock ttl")
	probeCmd.Flags().DurationVar(&probeHold, "hold", 0, "How long to hold the lock before releasing it")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	nodes, err := infra.NewRedisClients(ctx, cfg.LockRedisURLs)
	if err != nil {
		return err
	}
	defer infra.CloseRedisClients(nodes) // nolint:errcheck

	manager, err := lock.NewManager(lock.NewRedisStores(nodes...), cfg.Lock, lock.WithLogger(logging.Component(logger, "lock")))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	path := args[0]

	start := time.Now()
	token, err := manager.Acquire(ctx, path, probeTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", path, err)
	}
	fmt.Fprintf(out, "acquired=true path=%s attempts=%d quorum=%d/%d took=%s\n",
		path, token.Attempts(), manager.Quorum(), len(nodes), time.Since(start).Round(time.Millisecond))

	if probeHold > 0 {
		time.Sleep(probeHold)
	}
	if _, err := manager.Extend(ctx, token, probeTTL); err != nil {
		_ = manager.Release(ctx, token)
		return fmt.Errorf("extend %s: %w", path, err)
	}
	fmt.Fprintf(out, "extended=true valid_until=%s\n", token.ExpiresAt().Format(time.RFC3339Nano))

	if err := manager.Release(ctx, token); err != nil {
		return fmt.Errorf("release %s: %w", path, err)
	}
	fmt.Fprintln(out, "released=true")
	return nil
}
