package redis

import (
	"context"
	"net"
	"testing"
	"time"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestNewRedisClientRejectsEmptyAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "  ", ""); err == nil {
		t.Error("expected error for empty addr")
	}
}

func TestNewRedisClientFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, closedAddr(t), "")
	if err == nil {
		client.Close()
		t.Fatal("expected ping to fail")
	}
}
