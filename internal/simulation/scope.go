package simulation

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeKind selects what an enqueue covers.
type ScopeKind string

const (
	ScopeAll        ScopeKind = "all"
	ScopeMonster    ScopeKind = "monster"
	ScopeDungeon    ScopeKind = "dungeon"
	ScopeSlayerTier ScopeKind = "slayer"
)

// Scope is a simulation target: everything, or one monster, dungeon or slayer tier.
type Scope struct {
	Kind ScopeKind
	ID   int
}

// All is the scope covering every reachable monster, dungeon and slayer tier.
var All = Scope{Kind: ScopeAll}

// String formats the scope the way ParseScope reads it.
func (s Scope) String() string {
	if s.Kind == ScopeAll || s.Kind == "" {
		return string(ScopeAll)
	}
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// ParseScope parses "all", "monster:ID", "dungeon:ID" or "slayer:ID".
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == string(ScopeAll) {
		return All, nil
	}

	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return Scope{}, fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: invalid id in %q", ErrUnknownScope, s)
	}

	switch ScopeKind(kind) {
	case ScopeMonster, ScopeDungeon, ScopeSlayerTier:
		return Scope{Kind: ScopeKind(kind), ID: id}, nil
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrUnknownScope, s)
}
