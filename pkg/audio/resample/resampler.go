// ABOUTME: Streaming linear resampler for 16-bit interleaved PCM
// ABOUTME: Interpolates across chunk boundaries so split input matches whole input
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates.
// It keeps the last input frame of each chunk so consecutive calls produce a
// continuous output stream.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // next output position, in input frames; -1 is lastFrame
	lastFrame  []int16
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastFrame:  make([]int16, channels),
	}
}

// InputRate returns the source sample rate
func (r *Resampler) InputRate() int { return r.inputRate }

// OutputRate returns the target sample rate
func (r *Resampler) OutputRate() int { return r.outputRate }

// Resample consumes all of input and writes interpolated frames to output.
// input and output are interleaved. Returns the number of samples written;
// output should hold at least OutputSamplesNeeded(len(input)) samples.
func (r *Resampler) Resample(input []int16, output []int16) int {
	ch := r.channels
	inputFrames := len(input) / ch
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / ch

	at := func(frame, c int) int16 {
		if frame < 0 {
			return r.lastFrame[c]
		}
		return input[frame*ch+c]
	}

	outIdx := 0
	for outIdx < outputFrames {
		base := math.Floor(r.position)
		idx := int(base)

		// Need the frame after idx to interpolate
		if idx+1 >= inputFrames {
			break
		}

		frac := r.position - base
		for c := 0; c < ch; c++ {
			s1 := float64(at(idx, c))
			s2 := float64(at(idx+1, c))
			output[outIdx*ch+c] = int16(math.Round(s1*(1.0-frac) + s2*frac))
		}

		outIdx++
		r.position += r.ratio
	}

	copy(r.lastFrame, input[(inputFrames-1)*ch:inputFrames*ch])
	r.position -= float64(inputFrames)

	return outIdx * ch
}

// Reset clears the carried frame and position
func (r *Resampler) Reset() {
	r.position = 0
	for i := range r.lastFrame {
		r.lastFrame[i] = 0
	}
}

// OutputSamplesNeeded returns an upper bound on the samples produced from
// inputSamples input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(math.Ceil(float64(inputFrames+1)/r.ratio)) + 1
	return outputFrames * r.channels
}
