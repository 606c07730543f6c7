package notifier

import (
	"errors"

	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/relay"
)

// Notifier defines the interface for delivering outbound relay events
type Notifier interface {
	// Notify delivers one event
	Notify(ev relay.Event) error
}

// Multi delivers every event to each of its notifiers
type Multi []Notifier

// Notify calls every notifier, even after one fails, and joins their errors
func (m Multi) Notify(ev relay.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pump delivers events to n until events is closed. Delivery errors are
// logged and do not stop the pump.
func Pump(events <-chan relay.Event, n Notifier) {
	for ev := range events {
		if err := n.Notify(ev); err != nil {
			logger.IncrCounter("notifier.failures")
			logger.Warn("event delivery failed", logger.Fields{
				"event": ev.Name,
				"error": err.Error(),
			})
		}
	}
}
