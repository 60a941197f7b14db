package affect

import "github.com/yudurobotics/zing-bridge/domain/entities"

// classifyMode maps an affect triple to a prompt mode. The guards are
// evaluated top to bottom and the first match wins; their ranges
// overlap deliberately, so the order is load-bearing and must not be
// rearranged or flattened into a decision tree.
func classifyMode(arousal, valence, dominance float32) entities.PromptMode {
	switch {
	case arousal > 0.6 && valence < 0.35 && dominance > 0.5:
		return entities.ModeAngry
	case arousal > 0.5 && valence < 0.35 && dominance < 0.35:
		return entities.ModeAnxious
	case arousal < 0.25 && valence < 0.3 && dominance < 0.35:
		return entities.ModeSad
	case arousal < 0.2 && valence < 0.4:
		return entities.ModeTired
	case arousal < 0.25 && valence < 0.5:
		return entities.ModeCalm
	case arousal > 0.7 && valence > 0.6:
		return entities.ModeEnergetic
	case arousal > 0.45 && valence > 0.55 && dominance > 0.45:
		return entities.ModePlayful
	case arousal > 0.5 && valence < 0.4:
		return entities.ModeSupportive
	case valence > 0.6:
		return entities.ModeFriendly
	default:
		return entities.ModeNeutral
	}
}
