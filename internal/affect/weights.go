package affect

import "github.com/yudurobotics/zing-bridge/domain/entities"

// Each affect dimension is a fixed linear combination of the 10 sensor
// channels plus a bias term (index 10). Raw scores are clamped to [0, 1].
//
// Valence rewards familiar company and conversation and penalizes
// threats. Arousal tracks overall activation minus passivity. Dominance
// tracks control and familiarity minus vulnerability.

const weightLen = entities.SensorVectorLen + 1

//                                  bat    ppl   kno    unk    fal    lft    idl   snd   voi   mot  bias
var valenceWeights = [weightLen]float32{-0.05, 0.15, 0.3, -0.25, -0.2, -0.15, -0.1, 0.05, 0.15, 0.0, 0.3}
var arousalWeights = [weightLen]float32{0.0, 0.1, 0.0, 0.25, 0.2, 0.15, -0.25, 0.25, 0.2, 0.25, 0.1}
var dominanceWeights = [weightLen]float32{-0.1, 0.1, 0.25, -0.2, -0.15, -0.15, -0.05, 0.1, 0.15, 0.15, 0.35}

// weightDeltas are the per-persona additive adjustments applied to the
// base vectors before the dot product, shaping how the same inputs feel
// to differently-tempered robots.
type weightDeltas struct {
	valence   [weightLen]float32
	arousal   [weightLen]float32
	dominance [weightLen]float32
}

var personaDeltas = map[entities.Persona]weightDeltas{
	// Calm and compliant: slight social uplift, dampened startle
	// response, feels secure when following along.
	entities.PersonaObedient: {
		valence:   [weightLen]float32{0, 0.05, 0.05, 0, 0, 0, 0, 0, 0, 0, 0},
		arousal:   [weightLen]float32{0, 0, 0, 0, -0.05, 0, 0, -0.08, 0, -0.08, -0.05},
		dominance: [weightLen]float32{0, 0, 0.1, 0, 0, 0, 0, 0, 0.05, 0, 0.1},
	},
	// Playful and chaotic: noise and motion are fun, everything
	// excites it more, control matters less.
	entities.PersonaMischievous: {
		valence:   [weightLen]float32{0, 0, 0, 0, 0, 0, -0.05, 0.1, 0, 0.08, 0},
		arousal:   [weightLen]float32{0, 0, 0, 0, 0, 0.1, 0, 0.1, 0, 0.1, 0.08},
		dominance: [weightLen]float32{0, 0, -0.08, 0, 0, 0, 0, 0, 0, 0, -0.1},
	},
	// Affectionate: strong social warmth, sees the best in strangers,
	// threats barely register.
	entities.PersonaCute: {
		valence:   [weightLen]float32{0, 0.1, 0.15, 0.05, 0.05, 0, 0, 0, 0.1, 0, 0.08},
		arousal:   [weightLen]float32{0, 0.05, 0, 0, -0.05, -0.05, 0, 0, 0.05, 0, 0},
		dominance: [weightLen]float32{0, 0.05, 0.05, 0, 0, 0, 0, 0, 0, 0, 0.05},
	},
	// Defiant: less swayed by company, fights threats harder, always
	// feels in charge.
	entities.PersonaStubborn: {
		valence:   [weightLen]float32{0, -0.08, -0.1, 0.08, 0.05, 0, 0, 0, 0, 0, 0},
		arousal:   [weightLen]float32{0, 0, 0, 0.08, 0.1, 0.08, 0, 0, 0, 0.05, 0},
		dominance: [weightLen]float32{0, 0, 0.1, 0, 0, 0, 0, 0, 0, 0.08, 0.15},
	},
}

func applyDeltas(base, delta [weightLen]float32) [weightLen]float32 {
	var out [weightLen]float32
	for i := range base {
		out[i] = base[i] + delta[i]
	}
	return out
}

// weightedSum computes the biased dot product of a sensor vector with a
// weight vector and clamps the result to [0, 1].
func weightedSum(sensors entities.SensorVector, weights [weightLen]float32) float32 {
	sum := weights[entities.SensorVectorLen]
	for i := 0; i < entities.SensorVectorLen; i++ {
		sum += sensors[i] * weights[i]
	}
	if sum < 0 {
		return 0
	}
	if sum > 1 {
		return 1
	}
	return sum
}
