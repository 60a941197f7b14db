package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteWAVHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture", "utterance.wav")
	pcm := make([]byte, 32000) // 1 s at 16 kHz

	if err := WriteWAV(path, pcm, SampleRate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != 44+len(pcm) {
		t.Fatalf("file size: got %d, want %d", len(data), 44+len(pcm))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != SampleRate {
		t.Errorf("sample rate: got %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(data[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data chunk size: got %d, want %d", got, len(pcm))
	}
}

func TestResampleRatio(t *testing.T) {
	// 160 samples at 16 kHz should become 240 samples at 24 kHz.
	in := make([]byte, 160*2)
	out := Resample(in, 16000, 24000)
	if len(out) != 240*2 {
		t.Errorf("upsample length: got %d samples, want 240", len(out)/2)
	}

	down := Resample(out, 24000, 16000)
	if len(down) != 160*2 {
		t.Errorf("downsample length: got %d samples, want 160", len(down)/2)
	}
}

func TestResamplePreservesConstantSignal(t *testing.T) {
	in := make([]byte, 100*2)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(in[i*2:i*2+2], uint16(int16(1000)))
	}
	out := Resample(in, 16000, 24000)
	for i := 0; i < len(out)/2; i++ {
		if got := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2])); got != 1000 {
			t.Fatalf("sample %d: got %d, want 1000", i, got)
		}
	}
}

func TestResampleNoopSameRate(t *testing.T) {
	in := []byte{1, 2, 3, 4}
	if out := Resample(in, 16000, 16000); len(out) != len(in) {
		t.Errorf("same-rate resample should be a no-op")
	}
}
