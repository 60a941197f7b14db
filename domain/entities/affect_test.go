package entities

import (
	"encoding/json"
	"math"
	"testing"
)

func TestAffectReportRoundTrip(t *testing.T) {
	original := &AffectReport{
		SensorID:  42,
		Seq:       1234567,
		Active:    true,
		Kind:      ReportKindEmotional,
		Energy:    0.51,
		Threshold: 0.35,
		Valence:   0.62,
		Arousal:   0.48,
		Dominance: 0.55,
	}

	decoded, err := DecodeAffectReport(original.Encode())
	if err != nil {
		t.Fatalf("DecodeAffectReport failed: %v", err)
	}

	if decoded.SensorID != original.SensorID || decoded.Seq != original.Seq {
		t.Errorf("identity mismatch: got %+v", decoded)
	}
	if decoded.Active != original.Active || decoded.Kind != original.Kind {
		t.Errorf("status mismatch: got %+v", decoded)
	}
	if math.Abs(float64(decoded.Valence-original.Valence)) > 1e-6 {
		t.Errorf("valence: got %f, want %f", decoded.Valence, original.Valence)
	}
	if math.Abs(float64(decoded.Arousal-original.Arousal)) > 1e-6 {
		t.Errorf("arousal: got %f, want %f", decoded.Arousal, original.Arousal)
	}
	if math.Abs(float64(decoded.Dominance-original.Dominance)) > 1e-6 {
		t.Errorf("dominance: got %f, want %f", decoded.Dominance, original.Dominance)
	}
}

func TestAffectReportSize(t *testing.T) {
	r := &AffectReport{SensorID: 1}
	if got := len(r.Encode()); got != AffectReportSize {
		t.Errorf("encoded size: got %d, want %d", got, AffectReportSize)
	}
}

func TestPromptModeJSON(t *testing.T) {
	raw, err := json.Marshal(ModePlayful)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `"playful"` {
		t.Errorf("marshal: got %s", raw)
	}

	var mode PromptMode
	if err := json.Unmarshal([]byte(`"anxious"`), &mode); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if mode != ModeAnxious {
		t.Errorf("unmarshal: got %v, want %v", mode, ModeAnxious)
	}

	if err := json.Unmarshal([]byte(`"grumpy"`), &mode); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestPersonaValidation(t *testing.T) {
	if !PersonaObedient.Valid() {
		t.Error("obedient should be valid")
	}
	if Persona("grumpy").Valid() {
		t.Error("grumpy should be invalid")
	}

	for i, p := range Personas {
		if p.Index() != i {
			t.Errorf("persona %s index: got %d, want %d", p, p.Index(), i)
		}
		got, err := PersonaFromIndex(i)
		if err != nil {
			t.Fatalf("PersonaFromIndex(%d): %v", i, err)
		}
		if got != p {
			t.Errorf("PersonaFromIndex(%d): got %s, want %s", i, got, p)
		}
	}

	if _, err := PersonaFromIndex(len(Personas)); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
