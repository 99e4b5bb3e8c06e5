package audio

import (
	"encoding/binary"

	"github.com/rs/zerolog"
)

// Resampler converts 16-bit signed little-endian mono PCM between sample
// rates using linear interpolation. It carries the previous block's final
// sample and the fractional read position across calls so consecutive frames
// splice without clicks; one Resampler must therefore be owned by exactly one
// stream direction and never shared.
type Resampler struct {
	carry  int16
	primed bool
	// fractional source position of the next output, measured from the
	// carried sample at virtual index 0
	rem    float64
	logger zerolog.Logger
}

// NewResampler creates a resampler with empty filter state
func NewResampler(logger zerolog.Logger) *Resampler {
	return &Resampler{logger: logger}
}

// Reset clears the carried filter state, e.g. after the outbound buffer is
// dropped on a clear event
func (r *Resampler) Reset() {
	r.carry = 0
	r.primed = false
	r.rem = 0
}

// Resample converts pcm from srcRate to dstRate. When srcRate == dstRate the
// input is returned untouched, byte-identical. Invalid rates leave the data
// untouched and log a warning. The output length is always
// len(pcm) * dstRate / srcRate rounded down to a whole sample.
func (r *Resampler) Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate {
		return pcm
	}
	if srcRate <= 0 || dstRate <= 0 {
		r.logger.Warn().
			Int("src_rate", srcRate).
			Int("dst_rate", dstRate).
			Msg("Invalid sample rates, passing audio through unchanged")
		return pcm
	}
	if len(pcm) < 2 {
		return pcm
	}

	samples := bytesToSamples(pcm)
	n := len(samples)

	// Virtual source: the carried sample at index 0 followed by this block.
	// On the first block there is no carry and positions start at zero.
	var virtual []int16
	var start float64
	if r.primed {
		virtual = make([]int16, 0, n+1)
		virtual = append(virtual, r.carry)
		virtual = append(virtual, samples...)
		start = r.rem
	} else {
		virtual = samples
		start = 0
	}

	step := float64(srcRate) / float64(dstRate)
	outLen := n * dstRate / srcRate
	last := len(virtual) - 1

	out := make([]int16, outLen)
	for i := 0; i < outLen; i++ {
		pos := start + float64(i)*step
		idx0 := int(pos)
		if idx0 > last {
			idx0 = last
		}
		idx1 := idx0 + 1
		if idx1 > last {
			idx1 = last
		}
		frac := pos - float64(idx0)
		out[i] = int16(float64(virtual[idx0])*(1.0-frac) + float64(virtual[idx1])*frac)
	}

	// The next output position, rebased so the current final sample becomes
	// the next block's virtual index 0
	rem := start + float64(outLen)*step - float64(last)
	if rem < 0 {
		rem = 0
	}
	r.rem = rem
	r.carry = virtual[last]
	r.primed = true

	return samplesToBytes(out)
}

// bytesToSamples decodes little-endian 16-bit PCM. A trailing odd byte is
// dropped.
func bytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
