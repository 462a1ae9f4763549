package connectivity_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/connectivity"
	"meetsync/internal/logging"
)

type switchDialer struct {
	up atomic.Bool
}

func (d *switchDialer) dial(context.Context, string, string) (net.Conn, error) {
	if !d.up.Load() {
		return nil, errors.New("network unreachable")
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func newMonitor(d *switchDialer, opts ...connectivity.Option) *connectivity.Monitor {
	cfg := config.Default().Connectivity
	opts = append([]connectivity.Option{connectivity.WithDialer(d.dial)}, opts...)
	return connectivity.New(cfg, logging.NewNop(), opts...)
}

func TestCheckFiresHooksOnEdgesOnly(t *testing.T) {
	d := &switchDialer{}
	d.up.Store(true)
	m := newMonitor(d)

	var reconnects, disconnects int
	m.OnReconnect(func(context.Context) { reconnects++ })
	m.OnDisconnect(func(context.Context) { disconnects++ })

	ctx := context.Background()
	if !m.Check(ctx) {
		t.Fatal("expected online")
	}
	if reconnects != 0 {
		t.Fatalf("initial online probe must not replay, got %d", reconnects)
	}

	d.up.Store(false)
	if m.Check(ctx) || m.Online() {
		t.Fatal("expected offline")
	}
	m.Check(ctx)
	if disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", disconnects)
	}

	d.up.Store(true)
	m.Check(ctx)
	m.Check(ctx)
	if reconnects != 1 {
		t.Fatalf("expected one reconnect, got %d", reconnects)
	}
	if !m.Online() {
		t.Fatal("expected online after recovery")
	}
}

func TestReconnectHooksRunInOrder(t *testing.T) {
	d := &switchDialer{}
	m := newMonitor(d)
	ctx := context.Background()
	m.Check(ctx)

	var order []string
	m.OnReconnect(func(context.Context) { order = append(order, "videos") })
	m.OnReconnect(func(context.Context) { order = append(order, "log entries") })

	d.up.Store(true)
	m.Check(ctx)
	if len(order) != 2 || order[0] != "videos" || order[1] != "log entries" {
		t.Fatalf("unexpected hook order %v", order)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := &switchDialer{}
	m := newMonitor(d, connectivity.WithInterval(5*time.Millisecond))

	var mu sync.Mutex
	reconnected := make(chan struct{})
	m.OnReconnect(func(context.Context) {
		mu.Lock()
		defer mu.Unlock()
		select {
		case <-reconnected:
		default:
			close(reconnected)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	d.up.Store(true)
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect hook not called")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
