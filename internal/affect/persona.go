package affect

import (
	"sync"

	"github.com/yudurobotics/zing-bridge/domain/entities"
)

// PersonaState is the runtime-switchable active persona, shared between
// the affect workers and the admin API.
type PersonaState struct {
	mu      sync.RWMutex
	current entities.Persona
}

func NewPersonaState(initial entities.Persona) *PersonaState {
	if !initial.Valid() {
		initial = entities.PersonaObedient
	}
	return &PersonaState{current: initial}
}

func (p *PersonaState) Get() entities.Persona {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *PersonaState) Set(persona entities.Persona) error {
	if !persona.Valid() {
		return entities.ErrUnknownPersona
	}
	p.mu.Lock()
	p.current = persona
	p.mu.Unlock()
	return nil
}
