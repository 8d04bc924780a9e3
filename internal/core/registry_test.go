package core

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryFirstAndLast(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, true)

	c1 := NewClient(7, 4)
	c2 := NewClient(7, 4)

	first, err := reg.Register(ctx, c1)
	if err != nil || !first {
		t.Fatalf("first register: first=%v err=%v", first, err)
	}
	first, err = reg.Register(ctx, c2)
	if err != nil || first {
		t.Fatalf("second register: first=%v err=%v", first, err)
	}
	if n := len(reg.Connections(7)); n != 2 {
		t.Fatalf("expected 2 local connections, got %d", n)
	}

	_, last, ok, err := reg.Unregister(ctx, c1.ID)
	if err != nil || !ok || last {
		t.Fatalf("unregister c1: last=%v ok=%v err=%v", last, ok, err)
	}
	online, _ := reg.IsOnline(ctx, 7)
	if !online {
		t.Fatal("user should still be online")
	}

	uid, last, ok, err := reg.Unregister(ctx, c2.ID)
	if err != nil || !ok || !last || uid != 7 {
		t.Fatalf("unregister c2: uid=%d last=%v ok=%v err=%v", uid, last, ok, err)
	}
	online, _ = reg.IsOnline(ctx, 7)
	if online {
		t.Fatal("user should be offline")
	}
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, true)
	c := NewClient(1, 4)

	if _, err := reg.Register(ctx, c); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, ok, _ := reg.Unregister(ctx, c.ID); !ok {
		t.Fatal("first unregister should find the handle")
	}
	if _, last, ok, err := reg.Unregister(ctx, c.ID); ok || last || err != nil {
		t.Fatalf("second unregister: last=%v ok=%v err=%v", last, ok, err)
	}
	if _, _, ok, _ := reg.Unregister(ctx, "never-registered"); ok {
		t.Fatal("unknown handle should be a no-op")
	}
}

func TestRegistrySingleSession(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(nil, false)

	if _, err := reg.Register(ctx, NewClient(3, 4)); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := reg.Register(ctx, NewClient(3, 4))
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
	if n := len(reg.Connections(3)); n != 1 {
		t.Fatalf("rejected connection must not be recorded, got %d", n)
	}
}

func TestRegistryCounterSeesOtherProcesses(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryCounter()
	a := NewRegistry(shared, true)
	b := NewRegistry(shared, true)

	ca := NewClient(9, 4)
	cb := NewClient(9, 4)
	if first, _ := a.Register(ctx, ca); !first {
		t.Fatal("first connection across processes expected")
	}
	if first, _ := b.Register(ctx, cb); first {
		t.Fatal("second process must not see a first connection")
	}
	if _, last, _, _ := a.Unregister(ctx, ca.ID); last {
		t.Fatal("user still connected through the other process")
	}
	if _, last, _, _ := b.Unregister(ctx, cb.ID); !last {
		t.Fatal("last connection expected")
	}
}
