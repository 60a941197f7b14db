package audio

import "encoding/binary"

// Resample converts 16-bit LE mono PCM between sample rates using
// linear interpolation. Quality is fine for speech; the provider side
// runs at 24 kHz while devices run at 16 kHz.
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || len(pcm) < 2 {
		return pcm
	}

	nIn := len(pcm) / 2
	in := make([]int16, nIn)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}

	nOut := int(int64(nIn) * int64(toRate) / int64(fromRate))
	out := make([]byte, nOut*2)
	ratio := float64(fromRate) / float64(toRate)
	for i := 0; i < nOut; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= nIn-1 {
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(in[nIn-1]))
			continue
		}
		frac := pos - float64(idx)
		sample := float64(in[idx])*(1-frac) + float64(in[idx+1])*frac
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(sample)))
	}
	return out
}
