package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	b, err := NewRedisBackend(ctx, RedisOptions{Addr: addr, Prefix: fmt.Sprintf("replaytest:%d:", time.Now().UnixNano())})
	require.NoError(t, err)
	defer b.Close()
	exerciseBackend(t, b)
}
