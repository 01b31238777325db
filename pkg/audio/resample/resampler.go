// ABOUTME: Linear resampler for converting audio sample rates
// ABOUTME: Streaming float32 conversion that interpolates across chunk boundaries
package resample

// Resampler performs linear interpolation to convert between sample rates.
// It keeps the last input frame of each call so that consecutive chunks
// interpolate as one continuous signal.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastFrame  []float32 // one sample per channel
	havePrev   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	if channels < 1 {
		channels = 1
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]float32, channels),
	}
}

// Process converts interleaved input at inputRate and returns interleaved
// output at outputRate. The final input frame is held back until the next
// call supplies its right-hand neighbour.
func (r *Resampler) Process(input []float32) []float32 {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return nil
	}

	frames := inputFrames
	offset := 0
	if r.havePrev {
		frames++
		offset = 1
	}

	frame := func(idx, ch int) float32 {
		if idx < offset {
			return r.lastFrame[ch]
		}
		return input[(idx-offset)*r.channels+ch]
	}

	out := make([]float32, 0, int(float64(frames)/r.ratio+1)*r.channels)
	for {
		idx := int(r.position)
		if idx+1 >= frames {
			break
		}
		frac := float32(r.position - float64(idx))
		for ch := 0; ch < r.channels; ch++ {
			a := frame(idx, ch)
			b := frame(idx+1, ch)
			out = append(out, a+(b-a)*frac)
		}
		r.position += r.ratio
	}

	// The last frame becomes index 0 of the next call
	r.position -= float64(frames - 1)
	for ch := 0; ch < r.channels; ch++ {
		r.lastFrame[ch] = frame(frames-1, ch)
	}
	r.havePrev = true

	return out
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.havePrev = false
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// Buffer converts a complete mono buffer in one pass. The output holds
// len(input)*outputRate/inputRate samples; the tail is extended from the
// last input sample.
func Buffer(input []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(input) == 0 {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	n := int(int64(len(input)) * int64(outputRate) / int64(inputRate))
	out := make([]float32, n)
	ratio := float64(inputRate) / float64(outputRate)
	last := len(input) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = input[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = input[idx] + (input[idx+1]-input[idx])*frac
	}
	return out
}
