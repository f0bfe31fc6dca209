// Package auth maps actors to roles using static allow-lists.
package auth

import (
	"fmt"
	"slices"

	"github.com/roach88/cloister/internal/model"
)

// Authorizer resolves the role of an actor at the moment of an action.
// Implementations must be safe for concurrent use.
type Authorizer interface {
	RoleOf(actor model.ActorID) model.Role
}

// Static is an Authorizer backed by two disjoint, immutable id sets.
type Static struct {
	hermits   map[model.ActorID]struct{}
	initiates map[model.ActorID]struct{}
}

// NewStatic builds a Static authorizer. The sets must be disjoint: an id in
// both lists is a configuration error rather than an implicit promotion.
func NewStatic(hermits, initiates []model.ActorID) (*Static, error) {
	s := &Static{
		hermits:   make(map[model.ActorID]struct{}, len(hermits)),
		initiates: make(map[model.ActorID]struct{}, len(initiates)),
	}
	for _, id := range hermits {
		s.hermits[id] = struct{}{}
	}
	var overlap []model.ActorID
	for _, id := range initiates {
		if _, ok := s.hermits[id]; ok {
			overlap = append(overlap, id)
			continue
		}
		s.initiates[id] = struct{}{}
	}
	if len(overlap) > 0 {
		slices.Sort(overlap)
		return nil, fmt.Errorf("role sets overlap: %v", overlap)
	}
	return s, nil
}

// RoleOf returns RoleHermit, RoleInitiate or RoleNone. Hermit outranks
// Initiate.
func (s *Static) RoleOf(actor model.ActorID) model.Role {
	if _, ok := s.hermits[actor]; ok {
		return model.RoleHermit
	}
	if _, ok := s.initiates[actor]; ok {
		return model.RoleInitiate
	}
	return model.RoleNone
}

// Func adapts a function to the Authorizer interface.
type Func func(actor model.ActorID) model.Role

// RoleOf calls f(actor).
func (f Func) RoleOf(actor model.ActorID) model.Role {
	return f(actor)
}
