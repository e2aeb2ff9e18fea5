package events

import (
	"io"
	"log/slog"
	"testing"
)

func TestNATSPublisher_Subject(t *testing.T) {
	p := NewNATSPublisher(nil, "monitoring.hls", slog.New(slog.NewTextHandler(io.Discard, nil)))
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUpdate, "monitoring.hls.update"},
		{KindSignal, "monitoring.hls.signal"},
		{KindDeleted, "monitoring.hls.deleted"},
	}
	for _, tt := range tests {
		if got := p.Subject(tt.kind); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDialNATS_Unreachable(t *testing.T) {
	_, err := DialNATS(NATSConfig{URL: "nats://127.0.0.1:1"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("expected connection error")
	}
}
