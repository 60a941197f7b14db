package entities

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// PromptMode is the discrete steering label derived from a sensor's
// estimated affect and applied to the upstream inference session.
type PromptMode int

const (
	ModeNeutral PromptMode = iota
	ModeAngry
	ModeAnxious
	ModeSad
	ModeTired
	ModeCalm
	ModeEnergetic
	ModePlayful
	ModeSupportive
	ModeFriendly
)

// String returns the string representation of the mode.
func (m PromptMode) String() string {
	switch m {
	case ModeAngry:
		return "angry"
	case ModeAnxious:
		return "anxious"
	case ModeSad:
		return "sad"
	case ModeTired:
		return "tired"
	case ModeCalm:
		return "calm"
	case ModeEnergetic:
		return "energetic"
	case ModePlayful:
		return "playful"
	case ModeSupportive:
		return "supportive"
	case ModeFriendly:
		return "friendly"
	default:
		return "neutral"
	}
}

// MarshalJSON implements json.Marshaler.
func (m PromptMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *PromptMode) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "angry":
		*m = ModeAngry
	case "anxious":
		*m = ModeAnxious
	case "sad":
		*m = ModeSad
	case "tired":
		*m = ModeTired
	case "calm":
		*m = ModeCalm
	case "energetic":
		*m = ModeEnergetic
	case "playful":
		*m = ModePlayful
	case "supportive":
		*m = ModeSupportive
	case "friendly":
		*m = ModeFriendly
	case "neutral":
		*m = ModeNeutral
	default:
		return errors.New("unknown prompt mode: " + name)
	}
	return nil
}

// AffectState is the current affect estimate for one sensor identity.
// All scalars are clamped to [0, 1]. Mode changes only through the
// engine's hysteresis rule, never on every packet.
type AffectState struct {
	SensorID  uint32     `json:"sensor_id"`
	Arousal   float64    `json:"arousal"`
	Valence   float64    `json:"valence"`
	Dominance float64    `json:"dominance"`
	Mode      PromptMode `json:"mode"`
	ModeSince time.Time  `json:"mode_since"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Affect report kinds, mirroring the sensor payload that produced them.
const (
	ReportKindAudio     uint8 = 1
	ReportKindEmotional uint8 = 2
)

// AffectReportSize is the fixed wire size of an encoded AffectReport.
const AffectReportSize = 34

// ErrAffectReportTooShort is returned when decoding a truncated report.
var ErrAffectReportTooShort = errors.New("affect report shorter than fixed size")

// AffectReport is the binary result sent back to a sensor's origin after
// each processed packet. Wire format (little-endian):
//
//	[ sensor_id: u32 ][ seq: u64 ][ active: u8 ][ kind: u8 ]
//	[ energy: f32 ][ threshold: f32 ]
//	[ valence: f32 ][ arousal: f32 ][ dominance: f32 ]
type AffectReport struct {
	SensorID  uint32
	Seq       uint64
	Active    bool
	Kind      uint8
	Energy    float32
	Threshold float32
	Valence   float32
	Arousal   float32
	Dominance float32
}

// Encode serializes the report for transmission.
func (r *AffectReport) Encode() []byte {
	buf := make([]byte, AffectReportSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.SensorID)
	binary.LittleEndian.PutUint64(buf[4:12], r.Seq)
	if r.Active {
		buf[12] = 1
	}
	buf[13] = r.Kind
	binary.LittleEndian.PutUint32(buf[14:18], math.Float32bits(r.Energy))
	binary.LittleEndian.PutUint32(buf[18:22], math.Float32bits(r.Threshold))
	binary.LittleEndian.PutUint32(buf[22:26], math.Float32bits(r.Valence))
	binary.LittleEndian.PutUint32(buf[26:30], math.Float32bits(r.Arousal))
	binary.LittleEndian.PutUint32(buf[30:34], math.Float32bits(r.Dominance))
	return buf
}

// DecodeAffectReport parses a report from raw bytes.
func DecodeAffectReport(buf []byte) (*AffectReport, error) {
	if len(buf) < AffectReportSize {
		return nil, ErrAffectReportTooShort
	}
	f32 := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return &AffectReport{
		SensorID:  binary.LittleEndian.Uint32(buf[0:4]),
		Seq:       binary.LittleEndian.Uint64(buf[4:12]),
		Active:    buf[12] != 0,
		Kind:      buf[13],
		Energy:    f32(14),
		Threshold: f32(18),
		Valence:   f32(22),
		Arousal:   f32(26),
		Dominance: f32(30),
	}, nil
}
