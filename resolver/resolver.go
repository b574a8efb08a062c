package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service"
)

const (
	exactIDScore   = 100
	keywordWeight  = 2
	aliasWeight    = 3
	winnerRatio    = 1.5
	closeRatio     = 0.6
	maxSuggestions = 3
)

// Kind of the outcome of a resolution
type Kind int

const (
	Resolved Kind = iota
	Ambiguous
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	case NotFound:
		return "not_found"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Suggestion is the summary of a candidate collection
type Suggestion struct {
	ID          string `json:"collection"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Match is the outcome of the resolution of a query.
// Exactly one of the variants is set, according to Kind().
type Match struct {
	query       string
	kind        Kind
	id          string
	suggestions []Suggestion
	categories  []string
}

// Kind returns the variant of the match
func (m Match) Kind() Kind { return m.kind }

// Query returns the query as provided by the caller
func (m Match) Query() string { return m.query }

// ID returns the collection of a Resolved match
func (m Match) ID() string { return m.id }

// Suggestions returns the candidates of an Ambiguous match
func (m Match) Suggestions() []Suggestion { return append([]Suggestion(nil), m.suggestions...) }

// Categories returns the available categories of a NotFound match
func (m Match) Categories() []string { return append([]string(nil), m.categories...) }

// Err returns nil for a Resolved match, *ErrAmbiguous or *ErrNoMatch otherwise
func (m Match) Err() error {
	switch m.kind {
	case Ambiguous:
		return &ErrAmbiguous{Query: m.query, Suggestions: m.Suggestions()}
	case NotFound:
		return &ErrNoMatch{Query: m.query, Categories: m.Categories()}
	}
	return nil
}

// ErrAmbiguous is returned when the query matches several collections without a clear winner
type ErrAmbiguous struct {
	Query       string
	Suggestions []Suggestion
}

func (e *ErrAmbiguous) Error() string {
	ids := make([]string, len(e.Suggestions))
	for i, s := range e.Suggestions {
		ids[i] = s.ID
	}
	return fmt.Sprintf("query '%s' is ambiguous, please specify a collection (suggestions: %s)", e.Query, strings.Join(ids, ", "))
}

// ErrNoMatch is returned when the query does not match any collection
type ErrNoMatch struct {
	Query      string
	Categories []string
}

func (e *ErrNoMatch) Error() string {
	return fmt.Sprintf("could not determine collection from query '%s', please be more explicit about the type of data you want (available: %s)",
		e.Query, strings.Join(e.Categories, "; "))
}

type scored struct {
	rank  int // position in the registry
	id    string
	score int
}

// Resolve matches a free-text query against the registry.
// It has no side effect.
func Resolve(reg *registry.Registry, query string) Match {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	// Generic terms
	var ambiguous []string
	for _, a := range reg.Ambiguous() {
		if strings.Contains(q, a.Keyword) {
			ambiguous = append(ambiguous, a.Candidates...)
		}
	}

	// Keywords of the entries
	entries := reg.Entries()
	scores := make([]scored, len(entries))
	rank := map[string]int{}
	for i, e := range entries {
		scores[i] = scored{rank: i, id: e.ID}
		rank[e.ID] = i
		for _, k := range e.Keywords {
			if !strings.Contains(q, k) {
				continue
			}
			if k == e.ID {
				scores[i].score += exactIDScore
			} else {
				scores[i].score += len(k) * keywordWeight
			}
		}
	}

	// Flat table of specific keywords
	specific := false
	for _, a := range reg.Aliases() {
		if !strings.Contains(q, a.Keyword) || reg.IsAmbiguous(a.Keyword) {
			continue
		}
		specific = true
		scores[rank[a.ID]].score += len(a.Keyword) * aliasWeight
	}

	if len(ambiguous) > 0 && !specific {
		return ambiguousMatch(reg, query, dedup(ambiguous))
	}

	var matched []scored
	for _, s := range scores {
		if s.score > 0 {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return Match{query: query, kind: NotFound, categories: reg.Categories()}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score > matched[j].score
		}
		return matched[i].rank < matched[j].rank
	})

	top := matched[0]
	if len(matched) == 1 || float64(top.score) > float64(matched[1].score)*winnerRatio {
		return Match{query: query, kind: Resolved, id: top.id}
	}
	var closeIDs []string
	for _, s := range matched {
		if float64(s.score) >= float64(top.score)*closeRatio {
			closeIDs = append(closeIDs, s.id)
		}
	}
	if len(closeIDs) > 1 {
		return ambiguousMatch(reg, query, closeIDs)
	}
	return Match{query: query, kind: Resolved, id: top.id}
}

// Lookup resolves an explicit collection id
func Lookup(reg *registry.Registry, id string) (registry.Entry, error) {
	e, ok := reg.Get(strings.TrimSpace(id))
	if !ok {
		return registry.Entry{}, &ErrNoMatch{Query: id, Categories: reg.Categories()}
	}
	return e, nil
}

func ambiguousMatch(reg *registry.Registry, query string, ids []string) Match {
	if len(ids) > maxSuggestions {
		ids = ids[:maxSuggestions]
	}
	m := Match{query: query, kind: Ambiguous}
	for _, id := range ids {
		s := Suggestion{ID: id, Name: id}
		if e, ok := reg.Get(id); ok {
			s.Name, s.Description = e.Name, e.Description
		}
		m.suggestions = append(m.suggestions, s)
	}
	return m
}

func dedup(ids []string) []string {
	seen := service.StringSet{}
	var res []string
	for _, id := range ids {
		if !seen.Exists(id) {
			seen.Push(id)
			res = append(res, id)
		}
	}
	return res
}
