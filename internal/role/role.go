// Package role implements the access-control model: a closed role
// enumeration, the privilege hierarchy, and the explicit role-transition
// table consulted by every mutating operation.
package role

import (
	"errors"
	"fmt"
)

// Role is one of the four account roles.
type Role string

const (
	Consumer   Role = "consumer" // read-only participant
	User       Role = "user"
	Banker     Role = "banker"
	HeadBanker Role = "head_banker"
)

var (
	ErrUnknownRole       = errors.New("role: unknown role")
	ErrNotAuthorized     = errors.New("role: actor lacks required privilege")
	ErrIllegalTransition = errors.New("role: transition not permitted")
)

// rank orders roles for privilege comparison.
var rank = map[Role]int{
	Consumer:   0,
	User:       1,
	Banker:     2,
	HeadBanker: 3,
}

// Valid reports whether r is a member of the closed enumeration.
func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast reports whether r carries at least the privilege of min.
func (r Role) AtLeast(min Role) bool {
	return rank[r] >= rank[min]
}

// transition describes one legal row of the role-transition table.
type transition struct {
	from, to Role
	// actor must hold at least this role, unless selfOnly is set, in which
	// case the actor must be the target account itself.
	actor    Role
	selfOnly bool
}

// transitions is the complete table of legal role changes. Anything not
// listed is an illegal transition regardless of who asks. Head-banker
// appointment is deliberately absent: it happens outside this system.
var transitions = []transition{
	{from: User, to: Banker, actor: HeadBanker},           // promote
	{from: Banker, to: User, selfOnly: true},              // resignation
	{from: User, to: Consumer, actor: HeadBanker},         // demote to read-only
	{from: Banker, to: Consumer, actor: HeadBanker},
	{from: Consumer, to: User, actor: HeadBanker},         // restore
}

// ValidateTransition checks whether actorRole may move an account from one
// role to another. self reports whether the actor is the target account.
// Returns ErrIllegalTransition for rows absent from the table and
// ErrNotAuthorized when the row exists but the actor lacks standing.
func ValidateTransition(actorRole Role, self bool, from, to Role) error {
	if !actorRole.Valid() || !from.Valid() || !to.Valid() {
		return ErrUnknownRole
	}
	if from == to {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	for _, t := range transitions {
		if t.from != from || t.to != to {
			continue
		}
		if t.selfOnly {
			if !self {
				return fmt.Errorf("%w: %s -> %s is self-service only", ErrNotAuthorized, from, to)
			}
			return nil
		}
		if !actorRole.AtLeast(t.actor) {
			return fmt.Errorf("%w: %s -> %s requires %s", ErrNotAuthorized, from, to, t.actor)
		}
		return nil
	}

	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
