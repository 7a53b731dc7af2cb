package notification

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestFormatAmountUnknownAsset(t *testing.T) {
	if got := FormatAmount(1_500, "PTS"); got != "1500 PTS" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestFormatAmountKnownAsset(t *testing.T) {
	got := FormatAmount(1_500, "USD")
	if !strings.Contains(got, "15.00") {
		t.Fatalf("expected minor units rendered as 15.00, got %q", got)
	}
}

func TestLoggerNotifierSend(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := n.Send(context.Background(), Message{Kind: KindStreamOpened, Destination: "bob", Body: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), KindStreamOpened) {
		t.Fatalf("expected kind in log output, got %s", buf.String())
	}

	var nilNotifier *LoggerNotifier
	if err := nilNotifier.Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nil notifier should be a no-op, got %v", err)
	}
}
