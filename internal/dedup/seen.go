package dedup

import (
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
)

// Similarity is 1 - Levenshtein(a, b) / max(len(a), len(b)), measured in runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

// Line is a normalized dialogue line and its sighting history.
type Line struct {
	ID          string
	Text        string
	Raw         string
	FirstSeen   time.Time
	LastSeen    time.Time
	Occurrences int
}

// Kind classifies the outcome of processing one OCR result.
type Kind int

const (
	KindNew Kind = iota
	KindDuplicate
	KindGarbage
)

func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindGarbage:
		return "garbage"
	default:
		return "new"
	}
}

// Outcome is the result of Process. Line is a snapshot; for duplicates it is the
// matched line after its counters were bumped.
type Outcome struct {
	Kind       Kind
	Line       Line
	Similarity float64
	Err        error // garbage reason
}

// SeenSet remembers the lines of one session. It is safe for concurrent use.
type SeenSet struct {
	cfg Config

	mu      sync.Mutex
	session string
	lines   []*Line
	byKey   map[string]*Line
}

// NewSeenSet creates an empty set with a fresh session ID.
func NewSeenSet(cfg Config) *SeenSet {
	return &SeenSet{cfg: cfg, session: uuid.NewString(), byKey: make(map[string]*Line)}
}

// SessionID identifies the current session.
func (s *SeenSet) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Len returns the number of distinct lines seen this session.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Lines returns the session's lines in first-seen order.
func (s *SeenSet) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Line, len(s.lines))
	for i, l := range s.lines {
		out[i] = *l
	}
	return out
}

// Reset clears the set and starts a new session.
func (s *SeenSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = uuid.NewString()
	s.lines = nil
	s.byKey = make(map[string]*Line)
}

// Clean runs the garbage filter, fix rules and normalization without touching the
// set.
func Clean(raw string, cfg Config) (string, error) {
	if err := CheckGarbage(raw, cfg); err != nil {
		return "", err
	}
	return Normalize(ApplyFixRules(raw, cfg.FixRules)), nil
}

// Process cleans raw and classifies it against the session: garbage, a repeat of
// a known line (exact case-insensitive or fuzzy), or new.
func (s *SeenSet) Process(raw string, at time.Time) Outcome {
	text, err := Clean(raw, s.cfg)
	if err != nil {
		return Outcome{Kind: KindGarbage, Err: err, Line: Line{Raw: raw}}
	}
	key := strings.ToLower(text)

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.byKey[key]; ok {
		return Outcome{Kind: KindDuplicate, Line: s.bump(l, at), Similarity: 1}
	}

	if l, sim := s.closest(key); l != nil && sim >= s.cfg.SimilarityThreshold {
		return Outcome{Kind: KindDuplicate, Line: s.bump(l, at), Similarity: sim}
	}

	l := &Line{
		ID:          StableID(text),
		Text:        text,
		Raw:         raw,
		FirstSeen:   at,
		LastSeen:    at,
		Occurrences: 1,
	}
	s.lines = append(s.lines, l)
	s.byKey[key] = l
	return Outcome{Kind: KindNew, Line: *l}
}

func (s *SeenSet) bump(l *Line, at time.Time) Line {
	if at.After(l.LastSeen) {
		l.LastSeen = at
	}
	l.Occurrences++
	return *l
}

// closest returns the most similar remembered line; ties keep the earliest.
func (s *SeenSet) closest(key string) (*Line, float64) {
	var best *Line
	bestSim := -1.0
	for _, l := range s.lines {
		if sim := Similarity(key, strings.ToLower(l.Text)); sim > bestSim {
			best, bestSim = l, sim
		}
	}
	return best, bestSim
}
