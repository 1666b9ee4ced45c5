// Package wav writes canonical 44-byte-header PCM WAV files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// HeaderSize is the size of the canonical RIFF/WAVE header with a single fmt sub-chunk.
const HeaderSize = 44

const pcmFormat = 1

// Format describes linear PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Default is the speech server's output: 24 kHz mono PCM16.
var Default = Format{SampleRate: 24000, Channels: 1, BitsPerSample: 16}

// Validate rejects formats whose fields do not fit the header's 16 and 32-bit slots.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || int64(f.SampleRate) > math.MaxUint32 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 || f.Channels > math.MaxUint16 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 || f.BitsPerSample > math.MaxUint16 {
		return fmt.Errorf("invalid bits per sample: %d", f.BitsPerSample)
	}
	if f.BlockAlign() > math.MaxUint16 {
		return fmt.Errorf("block align %d does not fit the header", f.BlockAlign())
	}
	if int64(f.SampleRate)*int64(f.BlockAlign()) > math.MaxUint32 {
		return fmt.Errorf("byte rate %d does not fit the header", f.ByteRate())
	}
	return nil
}

// BlockAlign is the size in bytes of one frame across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate is the number of audio bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// ErrTooLarge is returned for payloads that do not fit the 32-bit RIFF size fields.
var ErrTooLarge = errors.New("pcm payload too large for a wav file")

// Header builds the header for dataSize bytes of PCM. The RIFF size field is 36+dataSize.
func Header(dataSize uint32, f Format) [HeaderSize]byte {
	var h [HeaderSize]byte
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], 36+dataSize)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16) // fmt chunk size
	le.PutUint16(h[20:22], pcmFormat)
	le.PutUint16(h[22:24], uint16(f.Channels))
	le.PutUint32(h[24:28], uint32(f.SampleRate))
	le.PutUint32(h[28:32], uint32(f.ByteRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], uint16(f.BitsPerSample))

	copy(h[36:40], "data")
	le.PutUint32(h[40:44], dataSize)
	return h
}

// WriteHeader writes the header for dataSize bytes of PCM to w.
func WriteHeader(w io.Writer, dataSize int, f Format) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if dataSize < 0 || uint64(dataSize) > math.MaxUint32-36 {
		return ErrTooLarge
	}
	h := Header(uint32(dataSize), f)
	_, err := w.Write(h[:])
	return err
}

// Encode returns a complete WAV file holding pcm.
func Encode(pcm []byte, f Format) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(pcm))
	if err := WriteHeader(&buf, len(pcm), f); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// WriteFile writes pcm as a WAV file at path.
func WriteFile(path string, pcm []byte, f Format) error {
	data, err := Encode(pcm, f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Duration is the playback length of dataSize bytes of PCM.
func Duration(dataSize int, f Format) time.Duration {
	rate := f.ByteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(dataSize) * int64(time.Second) / int64(rate))
}

// ParseHeader decodes a canonical header and returns its format and data size.
func ParseHeader(b []byte) (Format, uint32, error) {
	if len(b) < HeaderSize {
		return Format{}, 0, fmt.Errorf("short header: %d bytes", len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[12:16]) != "fmt " || string(b[36:40]) != "data" {
		return Format{}, 0, errors.New("not a canonical wav header")
	}
	le := binary.LittleEndian
	if le.Uint16(b[20:22]) != pcmFormat {
		return Format{}, 0, fmt.Errorf("unsupported audio format: %d", le.Uint16(b[20:22]))
	}
	f := Format{
		Channels:      int(le.Uint16(b[22:24])),
		SampleRate:    int(le.Uint32(b[24:28])),
		BitsPerSample: int(le.Uint16(b[34:36])),
	}
	return f, le.Uint32(b[40:44]), nil
}
