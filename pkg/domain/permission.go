package domain

import (
	"fmt"
	"strings"
)

// PermissionLevel is a point in the module access lattice.
type PermissionLevel string

const (
	LevelNone  PermissionLevel = "NONE"
	LevelRead  PermissionLevel = "READ"
	LevelWrite PermissionLevel = "WRITE"
	LevelAdmin PermissionLevel = "ADMIN"
)

// Levels lists the lattice in ascending order.
var Levels = []PermissionLevel{LevelNone, LevelRead, LevelWrite, LevelAdmin}

// ParsePermissionLevel parses a level name case-insensitively.
func ParsePermissionLevel(s string) (PermissionLevel, error) {
	l := PermissionLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", ErrInvalidLevel
	}
	return l, nil
}

// Valid reports whether l is one of the four lattice values.
func (l PermissionLevel) Valid() bool {
	switch l {
	case LevelNone, LevelRead, LevelWrite, LevelAdmin:
		return true
	}
	return false
}

// Rank returns the position of l in the lattice. It panics on an unknown
// level: levels are validated at the edge, so reaching here is a bug.
func (l PermissionLevel) Rank() int {
	switch l {
	case LevelNone:
		return 0
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelAdmin:
		return 3
	}
	panic(fmt.Sprintf("domain: unknown permission level %q", string(l)))
}

// Satisfies reports whether holding have is enough for need.
func Satisfies(have, need PermissionLevel) bool {
	return have.Rank() >= need.Rank()
}
