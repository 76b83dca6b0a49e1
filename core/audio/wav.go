package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV wraps raw linear16 audio into a RIFF/WAVE container.
func EncodeWAV(pcm []byte, info EncodingInfo) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if info.Format != EncodingLinear16 {
		return nil, fmt.Errorf("unsupported wav format %q", info.Format.Name())
	}
	if info.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", info.SampleRate)
	}

	channels := uint16(info.channels())
	bitsPerSample := uint16(16)
	dataSize := uint32(len(pcm))

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     wavHeaderSize - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(info.SampleRate),
		ByteRate:      uint32(info.SampleRate) * uint32(channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// WAVData returns the PCM payload and encoding of a WAV produced by
// [EncodeWAV].
func WAVData(wav []byte) ([]byte, EncodingInfo, error) {
	if len(wav) < wavHeaderSize {
		return nil, EncodingInfo{}, fmt.Errorf("wav data too short: need at least %d bytes, got %d", wavHeaderSize, len(wav))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(wav), binary.LittleEndian, &header); err != nil {
		return nil, EncodingInfo{}, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE" {
		return nil, EncodingInfo{}, fmt.Errorf("invalid wav file: missing RIFF/WAVE header")
	}
	if header.AudioFormat != 1 || header.BitsPerSample != 16 {
		return nil, EncodingInfo{}, fmt.Errorf("unsupported wav encoding: format %d, %d bits", header.AudioFormat, header.BitsPerSample)
	}

	end := wavHeaderSize + int(header.Subchunk2Size)
	if end > len(wav) {
		end = len(wav)
	}

	return wav[wavHeaderSize:end], EncodingInfo{
		SampleRate: int(header.SampleRate),
		Channels:   int(header.NumChannels),
		Format:     EncodingLinear16,
	}, nil
}
