package logger

import (
	"testing"
	"time"
)

func TestLoggerKeepsMostRecent(t *testing.T) {
	l := New(3)
	for _, text := range []string{"a", "b", "c", "d"} {
		l.Info(text)
	}

	all := l.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(all))
	}
	if all[0].Text != "d" || all[2].Text != "b" {
		t.Fatalf("unexpected order: %+v", all)
	}

	recent := l.GetRecent(1)
	if len(recent) != 1 || recent[0].Text != "d" {
		t.Fatalf("unexpected recent: %+v", recent)
	}
	if got := l.GetRecent(10); len(got) != 3 {
		t.Fatalf("GetRecent beyond size returned %d", len(got))
	}
}

func TestLoggerLevels(t *testing.T) {
	l := New(10)
	l.Warning("careful")
	l.Errorf("failed %d times", 2)
	l.Infof("ok %s", "now")

	msgs := l.GetAll()
	if msgs[0].Level != "info" || msgs[0].Text != "ok now" {
		t.Fatalf("unexpected info message: %+v", msgs[0])
	}
	if msgs[1].Level != "error" || msgs[1].Text != "failed 2 times" {
		t.Fatalf("unexpected error message: %+v", msgs[1])
	}
	if msgs[2].Level != "warning" {
		t.Fatalf("unexpected warning message: %+v", msgs[2])
	}
}

func TestNewDefaultsSize(t *testing.T) {
	l := New(0)
	for i := 0; i < defaultMaxSize+5; i++ {
		l.Info("x")
	}
	if got := len(l.GetAll()); got != defaultMaxSize {
		t.Fatalf("expected %d messages, got %d", defaultMaxSize, got)
	}
}

func TestLoggerStampsMessages(t *testing.T) {
	l := New(5)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }
	l.Info("first")

	got := l.GetAll()
	if len(got) != 1 || !got[0].Timestamp.Equal(base) {
		t.Fatalf("unexpected timestamp: %+v", got)
	}
}
