package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/PuraVida-Technologies/galoy/internal/lock"
)

func TestLockProbe(t *testing.T) {
	var (
		urls  []string
		nodes []*miniredis.Miniredis
	)
	for i := 0; i < 3; i++ {
		mr := miniredis.RunT(t)
		nodes = append(nodes, mr)
		urls = append(urls, "redis://"+mr.Addr())
	}
	t.Setenv("DATABASE_URL", "postgres://unused")
	t.Setenv("REDIS_URL", urls[0])
	t.Setenv("LOCK_REDIS_URLS", strings.Join(urls, ","))
	t.Setenv("NETWORK", "regtest")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"lock", "probe", "wallet-probe"})
	require.NoError(t, rootCmd.Execute())

	require.Contains(t, out.String(), "acquired=true path=wallet-probe")
	require.Contains(t, out.String(), "quorum=2/3")
	require.Contains(t, out.String(), "released=true")
	for _, mr := range nodes {
		require.False(t, mr.Exists(lock.DefaultKeyPrefix+"wallet-probe"))
	}
}
