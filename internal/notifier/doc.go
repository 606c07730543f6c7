// Package notifier delivers the relay's outbound events to their consumers.
//
// A Notifier receives one relay.Event at a time. Console prints a short
// summary per event, which is what "razfaz serve --verbose" shows. The HTTP
// transport's subscriber hub is another Notifier. Pump drains a relay stream
// into a Notifier until the relay shuts down.
package notifier
