package hostinfo

import (
	"context"
	"runtime"
	"testing"
)

func TestCollect(t *testing.T) {
	snap, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if snap.OS != runtime.GOOS {
		t.Errorf("OS = %s, want %s", snap.OS, runtime.GOOS)
	}
	if snap.Arch != runtime.GOARCH {
		t.Errorf("Arch = %s, want %s", snap.Arch, runtime.GOARCH)
	}
	if snap.Hostname == "" {
		t.Error("expected non-empty hostname")
	}
	if snap.MemoryTotal == 0 {
		t.Error("expected non-zero total memory")
	}
	if snap.CPUThreads == 0 {
		t.Error("expected non-zero CPU thread count")
	}
}

func TestCollect_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Collect(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
