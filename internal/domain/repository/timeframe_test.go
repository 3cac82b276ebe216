package repository

import (
	"testing"
	"time"
)

func TestNormalizeTimeframe(t *testing.T) {
	if tf := NormalizeTimeframe(""); tf != TF1m {
		t.Fatalf("expected default 1m, got %s", tf)
	}
	if tf := NormalizeTimeframe("5m"); tf != TF5m {
		t.Fatalf("expected 5m, got %s", tf)
	}
	if tf := NormalizeTimeframe("3h"); tf != TF1m {
		t.Fatalf("expected fallback to 1m, got %s", tf)
	}
}

func TestTimeframeBucket(t *testing.T) {
	ts := time.Date(2024, 1, 2, 9, 31, 42, 500, time.UTC)

	if got := TF1s.Bucket(ts); got.Nanosecond() != 0 || got.Second() != 42 {
		t.Fatalf("unexpected 1s bucket %v", got)
	}
	if got := TF1m.Bucket(ts); !got.Equal(time.Date(2024, 1, 2, 9, 31, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 1m bucket %v", got)
	}
	if got := TF5m.Bucket(ts); !got.Equal(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 5m bucket %v", got)
	}
}

func TestTimeframeDuration(t *testing.T) {
	if TF1s.Duration() != time.Second || TF1m.Duration() != time.Minute || TF5m.Duration() != 5*time.Minute {
		t.Fatal("unexpected durations")
	}
}
