// Package audio holds PCM helpers shared by the session layer and the
// upstream adapters: WAV capture and sample-rate conversion.
package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// WAV parameters for device audio: 16 kHz, 16-bit, mono.
const (
	SampleRate    = 16000
	BytesPerSamp  = 2
	wavHeaderSize = 44
)

// WriteWAV writes 16-bit LE mono PCM to path with a standard 44-byte
// RIFF header, creating parent directories as needed.
func WriteWAV(path string, pcm []byte, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}

	buf := make([]byte, wavHeaderSize+len(pcm))
	byteRate := sampleRate * BytesPerSamp

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1)                  // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], BytesPerSamp) // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)           // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)

	return os.WriteFile(path, buf, 0o644)
}
