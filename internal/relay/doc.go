// Package relay connects the UI layer to the scraper and the league store.
//
// Every request type has its own inbound channel and every response type its
// own outbound channel. Run reads the inbound channels and handles each
// request on a fresh goroutine, so a slow store read never holds up a scrape.
// Hash changes are the exception: one goroutine mirrors them in arrival order.
// A request yields at most one response. Responses carry no correlation id
// and independent requests may complete in any order.
//
// Request and response names match the event names the browser UI uses, see
// events.go. Dispatch decodes a named JSON payload and feeds the matching
// inbound channel. Stream merges the outbound channels into one Event stream
// for a transport.
package relay
