package service

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestServerStop_WaitsForDrain(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	var drained atomic.Bool
	srv.DrainOnStop(func() {
		time.Sleep(20 * time.Millisecond)
		drained.Store(true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))
	assert.True(t, drained.Load())
}

func TestServerStop_DrainTimeout(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	release := make(chan struct{})
	defer close(release)
	srv.DrainOnStop(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Stop(ctx), context.DeadlineExceeded)
}

func TestServerStop_WithoutDrain(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), zap.NewNop())
	assert.NoError(t, srv.Stop(context.Background()))
}
