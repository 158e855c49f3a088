package overlay

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/pable/versus-overlay/internal/aggregator"
	"github.com/pable/versus-overlay/internal/model"
)

// Broadcaster delivers a named event to every connected display client
// except the one identified by exclude.
type Broadcaster interface {
	Broadcast(event string, payload any, exclude string)
}

// Options configures a Store.
type Options struct {
	// SnapshotPath is rewritten after every update. Empty disables persistence.
	SnapshotPath string
	Stats        aggregator.Options
	Logger       *log.Logger
}

// Store owns the broadcast state, the match index and the seed table. All
// mutation goes through ApplyPatch, Reset and ReplaceIndex.
type Store struct {
	mu    sync.Mutex
	state State
	index model.MatchIndex
	seeds model.Seeds

	opts   Options
	out    Broadcaster
	logger *log.Logger
}

// NewStore creates a store seeded with initial. out may be nil until a push
// channel is attached with SetBroadcaster.
func NewStore(initial State, out Broadcaster, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		state:  initial,
		index:  make(model.MatchIndex),
		seeds:  make(model.Seeds),
		opts:   opts,
		out:    out,
		logger: logger,
	}
}

// Open builds a Store from the snapshot at opts.SnapshotPath, falling back to
// an empty state when the file is absent or unreadable.
func Open(out Broadcaster, opts Options) *Store {
	s := NewStore(State{}, out, opts)
	if opts.SnapshotPath == "" {
		return s
	}
	st, ok, err := LoadSnapshot(opts.SnapshotPath)
	switch {
	case err != nil:
		s.logger.Warn("ignoring unreadable snapshot", "path", opts.SnapshotPath, "err", err)
	case ok:
		s.state = st
		s.logger.Info("state restored", "path", opts.SnapshotPath)
	}
	return s
}

// SetBroadcaster attaches the push channel.
func (s *Store) SetBroadcaster(out Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = out
}

// State returns the current state with derived fields recomputed.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = withStats(s.state, s.index, s.seeds, s.opts.Stats)
	return s.state
}

// ApplyPatch merges p into the state, recomputes both players' stats,
// broadcasts the full state to everyone but origin and persists it.
func (s *Store) ApplyPatch(p Patch, origin string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = withStats(p.Apply(s.state), s.index, s.seeds, s.opts.Stats)
	s.publishLocked(origin)
	s.persistLocked()
	return s.state
}

// Reset clears the state back to empty, then broadcasts and persists it.
func (s *Store) Reset() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = withStats(State{}, s.index, s.seeds, s.opts.Stats)
	s.publishLocked("")
	s.persistLocked()
	return s.state
}

// ReplaceIndex installs a freshly built index and seed table. Clients are
// only notified when the displayed stats change.
func (s *Store) ReplaceIndex(idx model.MatchIndex, seeds model.Seeds) {
	if idx == nil {
		idx = make(model.MatchIndex)
	}
	if seeds == nil {
		seeds = make(model.Seeds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	s.seeds = seeds

	next := withStats(s.state, s.index, s.seeds, s.opts.Stats)
	if next == s.state {
		return
	}
	s.state = next
	s.publishLocked("")
	s.persistLocked()
}

// Stats computes one player's stats at level against the current index.
func (s *Store) Stats(player, level string) (model.PlayerStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregator.ComputeStats(s.index, player, level, s.opts.Stats)
}

// Players lists every player in the current index.
func (s *Store) Players() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregator.Players(s.index)
}

// Levels lists every level in the current index.
func (s *Store) Levels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregator.Levels(s.index)
}

// Leaderboard ranks every player at level against the current index.
func (s *Store) Leaderboard(level string) []aggregator.PlayerLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return aggregator.Leaderboard(s.index, level, s.opts.Stats)
}

func (s *Store) publishLocked(origin string) {
	if s.out == nil {
		return
	}
	s.out.Broadcast(EventUpdate, Update{State: s.state, SocketID: origin}, origin)
}

// persistLocked writes the snapshot. Failures are logged and dropped.
func (s *Store) persistLocked() {
	if s.opts.SnapshotPath == "" {
		return
	}
	if err := SaveSnapshot(s.opts.SnapshotPath, s.state); err != nil {
		s.logger.Error("error writing state file", "path", s.opts.SnapshotPath, "err", err)
	}
}
