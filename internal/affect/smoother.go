package affect

import (
	"sync"

	"github.com/yudurobotics/zing-bridge/domain/entities"
)

// Smoother applies an exponential moving average to the idle_time
// channel so boredom ramps gradually instead of flipping the mood on a
// single packet. Other channels pass through untouched.
//
// The EMA alpha is persona-dependent; a higher alpha means idle ramps
// faster and the robot gets sad sooner. Half-life in packets is roughly
// ln(2)/alpha.
type Smoother struct {
	mu    sync.Mutex
	state map[uint32]float32
}

func NewSmoother() *Smoother {
	return &Smoother{state: make(map[uint32]float32)}
}

func idleAlpha(persona entities.Persona) float32 {
	switch persona {
	case entities.PersonaStubborn:
		return 0.03
	case entities.PersonaObedient:
		return 0.05
	case entities.PersonaCute:
		return 0.08
	case entities.PersonaMischievous:
		return 0.15
	default:
		return 0.05
	}
}

// Smooth updates the idle_time channel of sensors in place using the
// per-sensor EMA state. Each physical device ramps independently.
func (s *Smoother) Smooth(sensorID uint32, sensors *entities.SensorVector, persona entities.Persona) {
	alpha := idleAlpha(persona)

	s.mu.Lock()
	prev := s.state[sensorID]
	smoothed := alpha*sensors[entities.ChannelIdleTime] + (1-alpha)*prev
	s.state[sensorID] = smoothed
	s.mu.Unlock()

	sensors[entities.ChannelIdleTime] = smoothed
}

// Reset clears the EMA state for one sensor, e.g. after eviction.
func (s *Smoother) Reset(sensorID uint32) {
	s.mu.Lock()
	delete(s.state, sensorID)
	s.mu.Unlock()
}
