// Package hostset implements the blocked-host collection behind the
// interception policy: an insertion-ordered, de-duplicated set of canonical
// host names with a "; "-delimited text form for display and editing.
package hostset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kdelane/faultgate/internal/fault/common/utils"
)

// Delimiter separates entries in the editable text form.
const Delimiter = "; "

// ErrInvalidHostToken reports one or more malformed entries during a bulk
// replace. The set is left unchanged when it is returned.
var ErrInvalidHostToken = errors.New("invalid host token")

// Set is an insertion-ordered collection of canonical blocked host names.
// Entries are stored lowercase and de-duplicated; empty or whitespace input is
// never stored. Set is not safe for concurrent use — the owning policy
// serializes access.
type Set struct {
	entries []string
	index   map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{index: make(map[string]struct{})}
}

// Contains reports whether host is a member of the set. The input is
// canonicalized before comparison; empty or malformed input is never a member.
func (s *Set) Contains(host string) bool {
	cn, err := utils.CanonicalHost(host)
	if err != nil || cn == "" {
		return false
	}
	_, ok := s.index[cn]
	return ok
}

// Add inserts host, preserving insertion order. Duplicate, empty, and
// malformed input are no-ops: any string is acceptable, unknown or unusable
// hosts simply never match.
func (s *Set) Add(host string) {
	cn, err := utils.CanonicalHost(host)
	if err != nil || cn == "" {
		return
	}
	if _, ok := s.index[cn]; ok {
		return
	}
	s.index[cn] = struct{}{}
	s.entries = append(s.entries, cn)
}

// Remove deletes host if present; no-op otherwise.
func (s *Set) Remove(host string) {
	cn, err := utils.CanonicalHost(host)
	if err != nil || cn == "" {
		return
	}
	if _, ok := s.index[cn]; !ok {
		return
	}
	delete(s.index, cn)
	for i, e := range s.entries {
		if e == cn {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (s *Set) Len() int { return len(s.entries) }

// Entries returns a copy of the entries in insertion order.
func (s *Set) Entries() []string {
	return append([]string(nil), s.entries...)
}

// String renders the set in its editable text form, joining entries with
// "; " in insertion order. An empty set yields "".
func (s *Set) String() string {
	return strings.Join(s.entries, Delimiter)
}

// ReplaceAll parses raw as a ";"-delimited host list and replaces the entire
// set atomically. Empty tokens are discarded. If any token cannot be
// canonicalized the set is left unchanged and the returned error wraps
// ErrInvalidHostToken with a detail naming every rejected token.
func (s *Set) ReplaceAll(raw string) error {
	return s.ReplaceAllTokens(strings.Split(raw, ";"))
}

// ReplaceAllTokens is ReplaceAll over pre-split tokens. It exists so callers
// that reserve special tokens (the policy's sentinel) can filter them out
// before delegating.
func (s *Set) ReplaceAllTokens(tokens []string) error {
	entries := make([]string, 0, len(tokens))
	index := make(map[string]struct{}, len(tokens))
	var bad []string
	for _, tok := range tokens {
		cn, err := utils.CanonicalHost(tok)
		if err != nil {
			bad = append(bad, strings.TrimSpace(tok))
			continue
		}
		if cn == "" {
			continue
		}
		if _, ok := index[cn]; ok {
			continue
		}
		index[cn] = struct{}{}
		entries = append(entries, cn)
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: rejected %s", ErrInvalidHostToken, strings.Join(quoteAll(bad), ", "))
	}
	s.entries = entries
	s.index = index
	return nil
}

func quoteAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = fmt.Sprintf("%q", t)
	}
	return out
}
