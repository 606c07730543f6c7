// Package server exposes a relay over HTTP for a browser UI.
//
// Requests are posted as JSON to /api/v1/events/{name} with the body
// {"payload": ...}. Responses are pushed on a server-sent-event stream at
// /api/v1/events, one SSE event per relay event with the payload as JSON
// data. A new stream starts with the latest urlHashChanged event so a UI
// that connects late still learns the current navigation hash.
package server
