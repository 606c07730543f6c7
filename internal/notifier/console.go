package notifier

import (
	"fmt"
	"io"
	"sync"

	"github.com/razfaz/razfaz/internal/league"
	"github.com/razfaz/razfaz/internal/relay"
)

// Console prints a one-line summary of each event
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console writing to w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Notify prints the event
func (c *Console) Notify(ev relay.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "--- %s ---\n%s\n\n", ev.Name, Summary(ev))
	return err
}

// Summary describes an event payload in a single line
func Summary(ev relay.Event) string {
	switch p := ev.Payload.(type) {
	case league.Info:
		return leagueSummary(&p)
	case *league.Info:
		return leagueSummary(p)
	case []league.DetailResult:
		failed := 0
		for _, r := range p {
			if r.Failed() {
				failed++
			}
		}
		return fmt.Sprintf("%d game details, %d failed", len(p), failed)
	case string:
		if p == "" {
			return "(empty)"
		}
		return p
	case nil:
		return "(no payload)"
	}
	return fmt.Sprintf("%v", ev.Payload)
}

func leagueSummary(info *league.Info) string {
	played := 0
	for i := range info.Games {
		if info.Games[i].Played() {
			played++
		}
	}
	name := info.Name
	if name == "" {
		name = "league"
	}
	return fmt.Sprintf("%s (%s): %d games, %d played, %d teams ranked",
		name, info.LeagueID, len(info.Games), played, len(info.Ranking))
}
