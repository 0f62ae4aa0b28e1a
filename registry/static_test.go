package registry

import (
	"context"
	"testing"
	"time"
)

func TestStaticRegisterDiscover(t *testing.T) {
	s := StaticFromAddrs("spectrod", "127.0.0.1:9002", "127.0.0.1:9001")
	ctx := context.Background()

	instances, err := s.Discover(ctx, "spectrod")
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 || instances[0].Addr != "127.0.0.1:9001" {
		t.Fatalf("expect 2 instances sorted by address, got %+v", instances)
	}

	s.Deregister(ctx, "spectrod", "127.0.0.1:9001")
	instances, _ = s.Discover(ctx, "spectrod")
	if len(instances) != 1 || instances[0].Addr != "127.0.0.1:9002" {
		t.Fatalf("unexpected instances after deregister: %+v", instances)
	}

	if other, _ := s.Discover(ctx, "unknown"); len(other) != 0 {
		t.Fatalf("expect no instances for unknown service, got %+v", other)
	}
}

func TestStaticWatch(t *testing.T) {
	s := NewStatic()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Watch(ctx, "spectrod")

	s.Register(ctx, "spectrod", ServiceInstance{Addr: "127.0.0.1:9001"}, 10)
	s.Register(ctx, "spectrod", ServiceInstance{Addr: "127.0.0.1:9002"}, 10)

	select {
	case list := <-ch:
		if len(list) != 2 {
			t.Fatalf("expect latest list with 2 instances, got %+v", list)
		}
	case <-time.After(time.Second):
		t.Fatal("no watch update")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// A pending update may still be drained before close.
			if _, ok := <-ch; ok {
				t.Fatal("expect channel closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
