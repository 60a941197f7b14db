package entities

import "errors"

// Persona is the personality trait shaping how the affect engine weighs
// the same sensor inputs. Each trait applies additive deltas to the base
// valence/arousal/dominance weight vectors.
type Persona string

const (
	// PersonaObedient is calm and compliant: dampened arousal, boosted dominance.
	PersonaObedient Persona = "obedient"
	// PersonaMischievous is playful and chaotic: everything excites it more.
	PersonaMischievous Persona = "mischievous"
	// PersonaCute is affectionate: amplified social valence, softened threats.
	PersonaCute Persona = "cute"
	// PersonaStubborn is defiant: boosted dominance, amplified threat arousal.
	PersonaStubborn Persona = "stubborn"
)

// Personas lists all traits in definition order.
var Personas = []Persona{PersonaObedient, PersonaMischievous, PersonaCute, PersonaStubborn}

// ErrUnknownPersona is returned for names or indexes outside the known set.
var ErrUnknownPersona = errors.New("unknown persona")

// Valid reports whether p is a known trait.
func (p Persona) Valid() bool {
	switch p {
	case PersonaObedient, PersonaMischievous, PersonaCute, PersonaStubborn:
		return true
	}
	return false
}

// Index returns the numeric index of the trait, matching the device
// firmware enum (0-based, definition order).
func (p Persona) Index() int {
	for i, v := range Personas {
		if v == p {
			return i
		}
	}
	return -1
}

// PersonaFromIndex returns the trait with the given firmware index.
func PersonaFromIndex(i int) (Persona, error) {
	if i < 0 || i >= len(Personas) {
		return "", ErrUnknownPersona
	}
	return Personas[i], nil
}
