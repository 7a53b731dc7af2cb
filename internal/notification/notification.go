package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Rhymond/go-money"
)

const (
	// KindStreamOpened tells a receiver that funds started streaming to them.
	KindStreamOpened = "stream_opened"
	// KindStreamWithdrawal confirms vested funds reached the receiver's wallet.
	KindStreamWithdrawal = "stream_withdrawal"
	// KindStreamClosed tells a party how a closed stream settled.
	KindStreamClosed = "stream_closed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}

// FormatAmount renders an amount in minor units of asset for humans. Unknown
// asset codes fall back to "<amount> <asset>".
func FormatAmount(amount int64, asset string) string {
	if money.GetCurrency(asset) == nil {
		return fmt.Sprintf("%d %s", amount, asset)
	}
	return money.New(amount, asset).Display()
}
