package audio

import (
	"fmt"

	"github.com/zaf/g711"
)

// Encoding identifies a telephony or PCM audio encoding.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16"
	EncodingULaw  Encoding = "ulaw"
	EncodingALaw  Encoding = "alaw"
)

// ConversionError is a typed error for invalid/unsupported codec conversions.
// Conversions never silently substitute an encoding.
type ConversionError struct {
	From, To Encoding
	Reason   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("audio: cannot convert %s -> %s: %s", e.From, e.To, e.Reason)
}

// Codec converts between telephony encodings and PCM16. Conversions are
// stateless per sample.
type Codec struct{}

// Decode converts encoded bytes to PCM16 samples.
func (Codec) Decode(enc Encoding, data []byte) ([]int16, error) {
	switch enc {
	case EncodingPCM16:
		return bytesToPCM16(data)
	case EncodingULaw:
		pcmBytes := g711.DecodeUlaw(data)
		return bytesToPCM16(pcmBytes)
	case EncodingALaw:
		pcmBytes := g711.DecodeAlaw(data)
		return bytesToPCM16(pcmBytes)
	default:
		return nil, &ConversionError{From: enc, To: EncodingPCM16, Reason: "unknown source encoding"}
	}
}

// Encode converts PCM16 samples to the target encoding's bytes.
func (Codec) Encode(enc Encoding, samples []int16) ([]byte, error) {
	switch enc {
	case EncodingPCM16:
		return pcm16ToBytes(samples), nil
	case EncodingULaw:
		return g711.EncodeUlaw(pcm16ToBytes(samples)), nil
	case EncodingALaw:
		return g711.EncodeAlaw(pcm16ToBytes(samples)), nil
	default:
		return nil, &ConversionError{From: EncodingPCM16, To: enc, Reason: "unknown target encoding"}
	}
}

func bytesToPCM16(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, &ConversionError{From: EncodingPCM16, To: EncodingPCM16, Reason: "odd byte length for PCM16"}
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out, nil
}

func pcm16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		u := uint16(s)
		out[2*i] = byte(u)
		out[2*i+1] = byte(u >> 8)
	}
	return out
}
