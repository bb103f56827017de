package support

import (
	"context"
	"strings"
	"testing"
)

func TestLeaderLockRequiresClientAndRun(t *testing.T) {
	lock := NewLeaderLock(nil, "ipcollector:test", 0)
	if lock.ttl != DefaultLeadershipTTL {
		t.Fatalf("ttl = %v, want default", lock.ttl)
	}
	if err := lock.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil run function")
	}
	if err := lock.Run(context.Background(), func(context.Context) {}); err == nil {
		t.Fatal("expected error without redis client")
	}
}

func TestGenerateLeaderIDUnique(t *testing.T) {
	a, b := generateLeaderID(), generateLeaderID()
	if a == b {
		t.Fatalf("leader ids collide: %s", a)
	}
	if strings.Count(a, "-") < 3 {
		t.Fatalf("unexpected leader id format %q", a)
	}
}
