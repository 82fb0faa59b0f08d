package debate

import (
	"fmt"

	"github.com/samber/lo"

	"roundtable/internal/domain"
)

// Participant binds a descriptor to the agent that speaks for it.
type Participant struct {
	domain.ParticipantDescriptor
	Agent     domain.Agent
	Available bool
}

// Registry is the read-only roster of participants in configuration order.
type Registry struct {
	order []Participant
	byID  map[string]int
}

// NewRegistry builds a registry, rejecting empty or duplicate ids.
func NewRegistry(participants ...Participant) (*Registry, error) {
	r := &Registry{
		order: make([]Participant, 0, len(participants)),
		byID:  make(map[string]int, len(participants)),
	}
	for _, p := range participants {
		if p.ID == "" {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput, "participant id is empty")
		}
		if p.Agent == nil {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput, fmt.Sprintf("participant %q has no agent", p.ID))
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, domain.NewDomainError("NewRegistry", domain.ErrInvalidInput, fmt.Sprintf("duplicate participant %q", p.ID))
		}
		r.byID[p.ID] = len(r.order)
		r.order = append(r.order, p)
	}
	return r, nil
}

// Get returns the participant with the given id.
func (r *Registry) Get(id string) (Participant, error) {
	i, ok := r.byID[id]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	return r.order[i], nil
}

// All returns every participant in configuration order.
func (r *Registry) All() []Participant {
	out := make([]Participant, len(r.order))
	copy(out, r.order)
	return out
}

// IDs returns every participant id in configuration order.
func (r *Registry) IDs() []string {
	return lo.Map(r.order, func(p Participant, _ int) string { return p.ID })
}

// Descriptors returns the display metadata of every participant.
func (r *Registry) Descriptors() []domain.ParticipantDescriptor {
	return lo.Map(r.order, func(p Participant, _ int) domain.ParticipantDescriptor {
		return p.ParticipantDescriptor
	})
}

// Resolve maps requested ids onto participants, keeping request order.
// Repeated ids collapse to their first occurrence; unknown ids are dropped
// and returned separately.
func (r *Registry) Resolve(ids []string) (resolved []Participant, unknown []string) {
	for _, id := range lo.Uniq(ids) {
		i, ok := r.byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		resolved = append(resolved, r.order[i])
	}
	return resolved, unknown
}

// Len returns the number of registered participants.
func (r *Registry) Len() int { return len(r.order) }
