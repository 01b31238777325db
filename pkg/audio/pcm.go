// ABOUTME: Little-endian 16-bit PCM byte helpers
// ABOUTME: Conversions between PCM bytes, int16 and float32 samples
package audio

import "encoding/binary"

// AppendPCM16 decodes little-endian 16-bit PCM and appends float samples to dst.
// A trailing odd byte is ignored.
func AppendPCM16(dst []float32, data []byte) []float32 {
	n := len(data) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
		dst = append(dst, Int16ToFloat32(sample))
	}
	return dst
}

// BytesToInt16 decodes little-endian 16-bit PCM
func BytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DownmixInt16 averages interleaved channels into mono
func DownmixInt16(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}
