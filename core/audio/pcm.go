package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Chunk is one decoded PCM16 payload as normalized mono samples at
// [PlaybackSampleRate].
type Chunk []float32

// Duration is the time the chunk takes to render at [PlaybackSampleRate].
func (c Chunk) Duration() time.Duration {
	return time.Duration(float64(len(c)) / PlaybackSampleRate * float64(time.Second))
}

// DecodeError reports a payload that could not be turned into samples.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode pcm16: %s: %v", e.Reason, e.Err)
	}
	return "decode pcm16: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodePCM16 turns base64 encoded little-endian signed 16-bit PCM into
// samples in [-1.0, 1.0) by dividing every value by 32768.
//
// Payloads with an odd number of bytes are rejected with a [DecodeError]
// instead of dropping the trailing byte.
func DecodePCM16(b64 string) (Chunk, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, &DecodeError{Reason: "malformed base64", Err: err}
	}

	return DecodeRawPCM16(raw)
}

// DecodeRawPCM16 is [DecodePCM16] for bytes that are already decoded.
func DecodeRawPCM16(raw []byte) (Chunk, error) {
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte length %d", len(raw))}
	}

	samples := make(Chunk, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[2*i:]))) / 32768.0
	}
	return samples, nil
}

// EncodePCM16 is the inverse of [DecodePCM16]. Samples outside the int16
// range are clamped.
func EncodePCM16(samples Chunk) string {
	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		value := math.Round(float64(sample) * 32768.0)
		value = max(math.MinInt16, min(math.MaxInt16, value))
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(value)))
	}
	return EncodeBase64(raw)
}

// EncodeBase64 encodes an outgoing recorded clip for upload.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
