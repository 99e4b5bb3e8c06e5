package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestResample_SameRatePassthrough(t *testing.T) {
	r := NewResampler(zerolog.Nop())
	in := pcmFromSamples([]int16{0, 1000, -1000, 32767, -32768})

	out := r.Resample(in, 16000, 16000)
	if !bytes.Equal(in, out) {
		t.Error("Expected byte-identical output when src == dst")
	}
}

func TestResample_InvalidRatesPassthrough(t *testing.T) {
	r := NewResampler(zerolog.Nop())
	in := pcmFromSamples([]int16{1, 2, 3, 4})

	if out := r.Resample(in, 0, 16000); !bytes.Equal(in, out) {
		t.Error("Expected passthrough for zero src rate")
	}
	if out := r.Resample(in, 8000, -1); !bytes.Equal(in, out) {
		t.Error("Expected passthrough for negative dst rate")
	}
}

func TestResample_UpsampleLength(t *testing.T) {
	r := NewResampler(zerolog.Nop())
	in := pcmFromSamples(make([]int16, 160)) // 20ms at 8kHz

	out := r.Resample(in, 8000, 16000)
	if len(out) != len(in)*2 {
		t.Errorf("Expected %d bytes, got %d", len(in)*2, len(out))
	}
}

func TestResample_DownsampleLength(t *testing.T) {
	r := NewResampler(zerolog.Nop())
	in := pcmFromSamples(make([]int16, 2400)) // 100ms at 24kHz

	out := r.Resample(in, 24000, 8000)
	if len(out) != len(in)/3 {
		t.Errorf("Expected %d bytes, got %d", len(in)/3, len(out))
	}
}

func TestResample_ZeroRoundTrip(t *testing.T) {
	up := NewResampler(zerolog.Nop())
	down := NewResampler(zerolog.Nop())
	in := pcmFromSamples(make([]int16, 320)) // 40ms of silence at 8kHz

	mid := up.Resample(in, 8000, 16000)
	out := down.Resample(mid, 16000, 8000)

	if len(out) != len(in) {
		t.Fatalf("Expected round-trip length %d, got %d", len(in), len(out))
	}
	for i, b := range out {
		if b != 0 {
			t.Fatalf("Expected all-zero output, got %#x at byte %d", b, i)
		}
	}
}

func TestResample_StateCarriesAcrossFrames(t *testing.T) {
	// A ramp split across two frames must resample without a discontinuity
	// larger than one source step at the seam.
	ramp := make([]int16, 320)
	for i := range ramp {
		ramp[i] = int16(i * 10)
	}

	whole := NewResampler(zerolog.Nop())
	split := NewResampler(zerolog.Nop())

	wholeOut := bytesToSamples(whole.Resample(pcmFromSamples(ramp), 8000, 16000))

	first := split.Resample(pcmFromSamples(ramp[:160]), 8000, 16000)
	second := split.Resample(pcmFromSamples(ramp[160:]), 8000, 16000)
	splitOut := bytesToSamples(append(first, second...))

	if len(wholeOut) != len(splitOut) {
		t.Fatalf("Expected equal lengths, got %d and %d", len(wholeOut), len(splitOut))
	}
	for i := range wholeOut {
		diff := int(wholeOut[i]) - int(splitOut[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 10 {
			t.Fatalf("Discontinuity at sample %d: whole=%d split=%d", i, wholeOut[i], splitOut[i])
		}
	}
}

func TestResample_Reset(t *testing.T) {
	r := NewResampler(zerolog.Nop())
	r.Resample(pcmFromSamples([]int16{100, 200, 300, 400}), 8000, 16000)
	r.Reset()

	if r.primed || r.rem != 0 || r.carry != 0 {
		t.Error("Expected Reset to clear all filter state")
	}
}
