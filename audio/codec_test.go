package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_ULawRoundTrip(t *testing.T) {
	var c Codec
	samples := make([]int16, 256)
	for i := range samples {
		samples[i] = int16((i - 128) * 200)
	}

	encoded, err := c.Encode(EncodingULaw, samples)
	require.NoError(t, err)
	decoded, err := c.Decode(EncodingULaw, encoded)
	require.NoError(t, err)

	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 520, "sample %d: ulaw round trip drifted too far", i)
	}
}

func TestCodec_ALawRoundTrip(t *testing.T) {
	var c Codec
	samples := make([]int16, 256)
	for i := range samples {
		samples[i] = int16((i - 128) * 200)
	}

	encoded, err := c.Encode(EncodingALaw, samples)
	require.NoError(t, err)
	decoded, err := c.Decode(EncodingALaw, encoded)
	require.NoError(t, err)

	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 520, "sample %d: alaw round trip drifted too far", i)
	}
}

func TestCodec_PCM16RoundTrip(t *testing.T) {
	var c Codec
	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}

	encoded, err := c.Encode(EncodingPCM16, samples)
	require.NoError(t, err)
	decoded, err := c.Decode(EncodingPCM16, encoded)
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)
}

func TestCodec_UnknownEncodingRejected(t *testing.T) {
	var c Codec
	_, err := c.Decode("opus", []byte{1, 2, 3})
	require.Error(t, err)
	var convErr *ConversionError
	require.ErrorAs(t, err, &convErr)
}

func TestCodec_OddLengthPCM16Rejected(t *testing.T) {
	var c Codec
	_, err := c.Decode(EncodingPCM16, []byte{1, 2, 3})
	require.Error(t, err)
}

// sineWave generates n samples of a sine wave at freqHz sampled at rateHz.
func sineWave(n, freqHz, rateHz int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*float64(freqHz)*float64(i)/float64(rateHz)))
	}
	return out
}

func rmse(a, b []int16) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

func TestResampler_RoundTripBoundedError(t *testing.T) {
	cases := []struct{ from, to int }{
		{8000, 16000}, {16000, 8000},
		{8000, 24000}, {24000, 8000},
		{16000, 48000}, {48000, 16000},
	}
	for _, tc := range cases {
		up, err := NewResampler(tc.from, tc.to)
		require.NoError(t, err)
		down, err := NewResampler(tc.to, tc.from)
		require.NoError(t, err)

		original := sineWave(tc.from, 440, tc.from)
		roundTripped := down.Process(up.Process(original))

		assert.LessOrEqual(t, rmse(original, roundTripped), 2500.0,
			"resample round trip %d->%d->%d exceeded RMSE bound", tc.from, tc.to, tc.from)
	}
}

func TestResampler_ChunkedMatchesWhole(t *testing.T) {
	whole, err := NewResampler(8000, 16000)
	require.NoError(t, err)
	chunked, err := NewResampler(8000, 16000)
	require.NoError(t, err)

	input := sineWave(800, 300, 8000)
	wholeOut := whole.Process(input)

	var chunkedOut []int16
	for i := 0; i < len(input); i += 80 {
		end := i + 80
		if end > len(input) {
			end = len(input)
		}
		chunkedOut = append(chunkedOut, chunked.Process(input[i:end])...)
	}

	assert.LessOrEqual(t, rmse(wholeOut, chunkedOut), 50.0,
		"chunked resampling diverged from whole-stream resampling beyond the carried-state error bound")
}
