package leaguestore

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/razfaz/razfaz/internal/league"
	"github.com/razfaz/razfaz/internal/logger"
	"github.com/razfaz/razfaz/internal/store"
)

// ErrSchemaChanged is returned by Load after a malformed document was purged
var ErrSchemaChanged = errors.New("stored league has an outdated format and was removed")

// SchemaChangedReason is the reason sent to the UI for ErrSchemaChanged
const SchemaChangedReason = "schema changed: the stored league was removed, scrape it again"

var (
	encoder = sonic.Config{
		EscapeHTML:       true,
		SortMapKeys:      true,
		CompactMarshaler: true,
	}.Froze()
	decoder = sonic.Config{
		DisallowUnknownFields: true,
		CopyString:            true,
		ValidateString:        true,
	}.Froze()
)

// State is a step of a single Save call
type State int

const (
	StateIdle State = iota
	StateReading
	StateUpdating
	StateInserting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateUpdating:
		return "updating"
	case StateInserting:
		return "inserting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SaveResult describes how a Save went
type SaveResult struct {
	LeagueID string
	// Path lists the states passed through after Idle, ending in Done or Failed
	Path []State
	Rev  string
	Err  error
}

// State returns the terminal state
func (r SaveResult) State() State {
	if len(r.Path) == 0 {
		return StateIdle
	}
	return r.Path[len(r.Path)-1]
}

// Branch returns StateUpdating or StateInserting, or StateIdle when Save
// failed before choosing one
func (r SaveResult) Branch() State {
	for _, s := range r.Path {
		if s == StateUpdating || s == StateInserting {
			return s
		}
	}
	return StateIdle
}

// OK reports whether the document was written
func (r SaveResult) OK() bool {
	return r.State() == StateDone
}

// Repository reads and writes leagues, one document per league id
type Repository struct {
	store store.Store
}

// New creates a Repository on top of s
func New(s store.Store) *Repository {
	return &Repository{store: s}
}

// Save stores info, inserting it if absent and updating it otherwise. On
// success info.Rev holds the new revision.
func (r *Repository) Save(ctx context.Context, info *league.Info) SaveResult {
	start := time.Now()
	res := SaveResult{}
	if info != nil {
		res.LeagueID = info.LeagueID
	}

	fail := func(err error) SaveResult {
		res.Path = append(res.Path, StateFailed)
		res.Err = err
		logger.IncrCounter("leaguestore.save_failures")
		logger.Error("league save failed", logger.Fields{
			"league_id": res.LeagueID,
			"branch":    res.Branch().String(),
			"conflict":  errors.Is(err, store.ErrConflict),
		}, err)
		return res
	}

	if err := info.Validate(); err != nil {
		return fail(err)
	}

	body, err := encoder.Marshal(info)
	if err != nil {
		return fail(errors.Wrap(err, "encoding league"))
	}

	res.Path = append(res.Path, StateReading)
	current, err := r.store.Get(ctx, info.LeagueID)
	doc := store.Document{ID: info.LeagueID, Body: body}
	switch {
	case err == nil:
		info.Rev = current.Rev
		doc.Rev = current.Rev
		res.Path = append(res.Path, StateUpdating)
	case errors.Is(err, store.ErrNotFound):
		res.Path = append(res.Path, StateInserting)
	default:
		return fail(errors.Wrapf(err, "reading league %s", info.LeagueID))
	}

	rev, err := r.store.Put(ctx, doc)
	if err != nil {
		return fail(errors.Wrapf(err, "%s league %s", res.Branch(), info.LeagueID))
	}

	info.Rev = rev
	res.Rev = rev
	res.Path = append(res.Path, StateDone)

	logger.IncrCounter("leaguestore." + res.Branch().String())
	logger.RecordTiming("leaguestore.save", time.Since(start))
	logger.Info("league saved", logger.Fields{
		"league_id": info.LeagueID,
		"branch":    res.Branch().String(),
		"rev":       rev,
		"games":     len(info.Games),
	})
	return res
}

// Load returns the stored league for id. A document that does not decode
// into a valid league.Info is deleted and ErrSchemaChanged is returned.
func (r *Repository) Load(ctx context.Context, id string) (*league.Info, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading league %s", id)
	}

	info, decodeErr := decode(doc)
	if decodeErr == nil {
		return info, nil
	}

	logger.IncrCounter("leaguestore.purged")
	logger.Warn("purging malformed league document", logger.Fields{
		"league_id": id,
		"rev":       doc.Rev,
		"error":     decodeErr.Error(),
	})
	if err := r.store.Delete(ctx, id, doc.Rev); err != nil {
		logger.Error("purging league document failed", logger.Fields{"league_id": id}, err)
	}

	return nil, errors.WithSecondaryError(errors.Wrapf(ErrSchemaChanged, "league %s", id), decodeErr)
}

func decode(doc store.Document) (*league.Info, error) {
	var info league.Info
	if err := decoder.Unmarshal(doc.Body, &info); err != nil {
		return nil, errors.Wrap(err, "decoding league")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if info.LeagueID != doc.ID {
		return nil, errors.Newf("document %s holds league %s", doc.ID, info.LeagueID)
	}
	if info.Games == nil {
		info.Games = []league.Game{}
	}
	// JSON keeps only the offset; restore the league's zone
	for i := range info.Games {
		if !info.Games[i].Date.IsZero() {
			info.Games[i].Date = info.Games[i].Date.In(league.Zurich)
		}
	}
	if info.Ranking == nil {
		info.Ranking = []league.RankingEntry{}
	}
	info.Rev = doc.Rev
	return &info, nil
}

// Reason turns a Load error into the non-empty text sent to the UI
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaChanged):
		return SchemaChangedReason
	case errors.Is(err, store.ErrNotFound):
		return err.Error()
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "unknown store error"
}
