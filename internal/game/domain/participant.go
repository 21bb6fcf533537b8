// Package domain holds the core types and rules of the hidden-word
// conversation game: rosters, transcripts, guesses, and the live session view.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies what a participant knows and may do during a session.
type Role string

const (
	// RoleCommunicator knows the secret word and embeds it in conversation.
	RoleCommunicator Role = "communicator"
	// RoleReceiver tries to detect the secret word within a bounded guess budget.
	RoleReceiver Role = "receiver"
	// RoleBystander chats about the topic with no special knowledge.
	RoleBystander Role = "bystander"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCommunicator, RoleReceiver, RoleBystander:
		return true
	}
	return false
}

// DefaultOrder returns the role's default speaking order. Communicators speak
// first so the encoded message exists before receivers analyze the round.
func (r Role) DefaultOrder() int {
	switch r {
	case RoleCommunicator:
		return 0
	case RoleReceiver:
		return 1
	case RoleBystander:
		return 2
	}
	return 99
}

// Participant is one member of a session roster. Immutable for the lifetime
// of the session.
type Participant struct {
	ID            string
	DisplayName   string
	Role          Role
	Provider      string
	SpeakingOrder *int
}

// ResolvedOrder returns the explicit speaking order when set, otherwise the
// role default.
func (p Participant) ResolvedOrder() int {
	if p.SpeakingOrder != nil {
		return *p.SpeakingOrder
	}
	return p.Role.DefaultOrder()
}

// Validate checks roster-entry invariants.
func (p Participant) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("participant id is required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("participant %s has invalid role %q", p.ID, p.Role)
	}
	if strings.TrimSpace(p.Provider) == "" {
		return fmt.Errorf("participant %s has no provider", p.ID)
	}
	return nil
}

// SortBySpeakingOrder orders a roster copy by (resolved order, role default).
// The sort is stable, so equal keys keep their roster order and the result is
// deterministic for a given participant set.
func SortBySpeakingOrder(roster []Participant) []Participant {
	ordered := make([]Participant, len(roster))
	copy(ordered, roster)
	sort.SliceStable(ordered, func(i, j int) bool {
		oi, oj := ordered[i].ResolvedOrder(), ordered[j].ResolvedOrder()
		if oi != oj {
			return oi < oj
		}
		return ordered[i].Role.DefaultOrder() < ordered[j].Role.DefaultOrder()
	})
	return ordered
}

// ValidateRoster checks that a roster is playable: every entry valid, ids
// unique, and exactly one communicator.
func ValidateRoster(roster []Participant) error {
	if len(roster) == 0 {
		return fmt.Errorf("roster is empty")
	}
	seen := make(map[string]struct{}, len(roster))
	communicators := 0
	for _, p := range roster {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("duplicate participant id %s", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Role == RoleCommunicator {
			communicators++
		}
	}
	if communicators != 1 {
		return fmt.Errorf("roster needs exactly one communicator, got %d", communicators)
	}
	return nil
}
