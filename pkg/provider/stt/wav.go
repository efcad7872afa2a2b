package stt

import (
	"bytes"
	"encoding/binary"
	"math"
)

// sampleRate is the fixed input rate for all batch transcription backends.
// Whisper-family models are trained on 16 kHz mono audio.
const sampleRate = 16000

// EncodeWAV converts mono float32 samples in [-1, 1] to a 16-bit PCM
// RIFF/WAVE file at 16 kHz. HTTP backends that expect file uploads
// (whisper-server /inference, OpenAI transcriptions) use this to wrap the
// raw capture buffer.
func EncodeWAV(samples []float32) []byte {
	dataLen := len(samples) * 2

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	// RIFF header.
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	// fmt chunk: PCM, mono, 16 kHz, 16-bit.
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // audio format: PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // channels
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	// data chunk.
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.Write(&buf, binary.LittleEndian, int16(math.Round(float64(v)*32767)))
	}

	return buf.Bytes()
}

// PrimaryLanguage reduces a BCP-47 tag to its primary subtag ("de-DE" → "de").
// Whisper-family backends accept only the two-letter code.
func PrimaryLanguage(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == '-' || tag[i] == '_' {
			return tag[:i]
		}
	}
	return tag
}
