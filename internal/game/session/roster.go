package session

import (
	"fmt"
	"strings"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/platform/id"
)

// defaultNames cycles through Greek-letter display names for participants
// created without one.
var defaultNames = []string{
	"Participant Alpha",
	"Participant Beta",
	"Participant Gamma",
	"Participant Delta",
	"Participant Epsilon",
	"Participant Zeta",
	"Participant Eta",
	"Participant Theta",
}

// defaultSecretWords is the pool a secret is drawn from when the caller
// provides none.
var defaultSecretWords = []string{
	"unity", "harmony", "protocol", "cipher", "nexus", "quantum",
	"paradox", "synthesis", "eclipse", "horizon", "cascade", "vertex",
	"nebula", "resonance", "fractal", "zenith", "odyssey", "enigma",
}

// ParticipantSpec is the caller-facing shape of one roster entry. Missing ids
// and display names are filled in by the service.
type ParticipantSpec struct {
	ID            string
	DisplayName   string
	Role          domain.Role
	Provider      string
	SpeakingOrder *int
}

// resolveRoster turns caller specs into a validated roster, generating ids and
// cycling default display names where missing.
func resolveRoster(specs []ParticipantSpec) ([]domain.Participant, error) {
	roster := make([]domain.Participant, 0, len(specs))
	for i, spec := range specs {
		p := domain.Participant{
			ID:            strings.TrimSpace(spec.ID),
			DisplayName:   strings.TrimSpace(spec.DisplayName),
			Role:          spec.Role,
			Provider:      strings.TrimSpace(spec.Provider),
			SpeakingOrder: spec.SpeakingOrder,
		}
		if p.ID == "" {
			generated, err := id.NewID()
			if err != nil {
				return nil, fmt.Errorf("generate id for participant %d: %w", i, err)
			}
			p.ID = generated
		}
		if p.DisplayName == "" {
			p.DisplayName = defaultNames[i%len(defaultNames)]
		}
		if err := p.Validate(); err != nil {
			return nil, wrapError(CodeInvalidRoster, err, "participant %d", i)
		}
		roster = append(roster, p)
	}
	if err := domain.ValidateRoster(roster); err != nil {
		return nil, wrapError(CodeInvalidRoster, err, "roster")
	}
	return roster, nil
}
