package memory

import (
	"sort"
	"strings"
	"sync"
)

// SummaryBullet is a single rolling-summary fact with the turn it was
// produced at and a lazily-cached embedding for semantic selection (C6).
type SummaryBullet struct {
	Text      string
	Turn      int
	Embedding []float32
}

// SessionSnapshot is what C4.load returns: the live state of one
// session's short-term memory.
type SessionSnapshot struct {
	SummaryBullets []SummaryBullet
	SalienceNotes  []string
}

type sessionState struct {
	mu      sync.Mutex
	bullets []SummaryBullet
	notes   []string
}

// ShortTermStore is C4: a per-session store of rolling summary bullets
// and salience notes. Callers are assumed to serialize mutations for a
// given session themselves; the store only guarantees that concurrent
// sessions don't interfere with each other.
type ShortTermStore struct {
	mu          sync.Mutex
	sessions    map[string]*sessionState
	maxBullets  int
	maxNotes    int
}

// NewShortTermStore builds a ShortTermStore. maxBullets/maxNotes <= 0
// fall back to 20.
func NewShortTermStore(maxBullets, maxNotes int) *ShortTermStore {
	if maxBullets <= 0 {
		maxBullets = 20
	}
	if maxNotes <= 0 {
		maxNotes = 20
	}
	return &ShortTermStore{sessions: make(map[string]*sessionState), maxBullets: maxBullets, maxNotes: maxNotes}
}

func (s *ShortTermStore) session(sessionID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &sessionState{}
		s.sessions[sessionID] = st
	}
	return st
}

// Upsert appends newBullets and newNotes (deduped by normalized text
// against what's already stored), then keeps at most the configured
// number of most-recent bullets/notes. turn tags newly-added bullets for
// later maxAgeTurns filtering in Load.
func (s *ShortTermStore) Upsert(sessionID string, turn int, newBullets, newNotes []string) SessionSnapshot {
	st := s.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	seen := make(map[string]struct{}, len(st.bullets))
	for _, b := range st.bullets {
		seen[normalize(b.Text)] = struct{}{}
	}
	for _, text := range newBullets {
		norm := normalize(text)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		st.bullets = append(st.bullets, SummaryBullet{Text: strings.TrimSpace(text), Turn: turn})
	}
	if len(st.bullets) > s.maxBullets {
		st.bullets = st.bullets[len(st.bullets)-s.maxBullets:]
	}

	noteSeen := make(map[string]struct{}, len(st.notes))
	for _, n := range st.notes {
		noteSeen[normalize(n)] = struct{}{}
	}
	for _, n := range newNotes {
		norm := normalize(n)
		if norm == "" {
			continue
		}
		if _, ok := noteSeen[norm]; ok {
			continue
		}
		noteSeen[norm] = struct{}{}
		st.notes = append(st.notes, strings.TrimSpace(n))
	}
	if len(st.notes) > s.maxNotes {
		st.notes = st.notes[len(st.notes)-s.maxNotes:]
	}

	return snapshotOf(st)
}

// CacheEmbeddings sets Embedding on the bullets whose normalized text
// matches a key in embeddings; bullets with no match are left as-is. C6
// uses this to avoid recomputing a bullet's embedding on every select
// call.
func (s *ShortTermStore) CacheEmbeddings(sessionID string, embeddings map[string][]float32) {
	st := s.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, b := range st.bullets {
		if vec, ok := embeddings[normalize(b.Text)]; ok {
			st.bullets[i].Embedding = vec
		}
	}
}

// Load returns a snapshot, optionally filtered to bullets from the last
// maxAgeTurns turns (0 means unfiltered).
func (s *ShortTermStore) Load(sessionID string, maxAgeTurns int) SessionSnapshot {
	st := s.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := snapshotOf(st)
	if maxAgeTurns <= 0 || len(snap.SummaryBullets) == 0 {
		return snap
	}
	cutoff := snap.SummaryBullets[len(snap.SummaryBullets)-1].Turn - maxAgeTurns
	filtered := make([]SummaryBullet, 0, len(snap.SummaryBullets))
	for _, b := range snap.SummaryBullets {
		if b.Turn >= cutoff {
			filtered = append(filtered, b)
		}
	}
	snap.SummaryBullets = filtered
	return snap
}

// Clear drops one session's state, or every session when sessionID is
// empty.
func (s *ShortTermStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		s.sessions = make(map[string]*sessionState)
		return
	}
	delete(s.sessions, sessionID)
}

func snapshotOf(st *sessionState) SessionSnapshot {
	bullets := make([]SummaryBullet, len(st.bullets))
	copy(bullets, st.bullets)
	sort.SliceStable(bullets, func(i, j int) bool { return bullets[i].Turn < bullets[j].Turn })
	notes := make([]string, len(st.notes))
	copy(notes, st.notes)
	return SessionSnapshot{SummaryBullets: bullets, SalienceNotes: notes}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
