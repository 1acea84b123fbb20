package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
)

// AudioSource provides 32-bit float PCM frames, one sample per element in
// the range [-1, 1]. Read blocks until samples are available; it returns
// io.EOF when the source is closed.
type AudioSource interface {
	Read(buf []float32) (int, error)
	Close() error
}

// base64ChunkSize is the number of PCM bytes encoded per chunk. It is a
// multiple of 3 so concatenated chunk encodings form one valid base64 string.
const base64ChunkSize = 32766

// EncodePCM16 converts float32 samples to little-endian 16-bit signed PCM.
// Samples are clamped to [-1, 1] before scaling.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// EncodeBase64Chunked base64-encodes data in fixed-size chunks. The output is
// byte-identical to a single-pass encoding; chunking bounds the working set
// for large capture buffers.
func EncodeBase64Chunked(data []byte) string {
	var b strings.Builder
	b.Grow(base64.StdEncoding.EncodedLen(len(data)))
	for len(data) > 0 {
		n := base64ChunkSize
		if n > len(data) {
			n = len(data)
		}
		b.WriteString(base64.StdEncoding.EncodeToString(data[:n]))
		data = data[n:]
	}
	return b.String()
}

// Recorder pulls PCM frames from an AudioSource, converts them to 16-bit PCM,
// and emits base64-encoded input_audio_buffer.append events. It is usable on
// its own, independent of a Session.
type Recorder struct {
	source AudioSource
	emit   func(payload []byte)

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
}

// NewRecorder creates a Recorder that calls emit with each encoded audio
// event payload.
func NewRecorder(source AudioSource, emit func(payload []byte)) *Recorder {
	return &Recorder{
		source: source,
		emit:   emit,
		done:   make(chan struct{}),
	}
}

// Start begins the capture pump. It may be called once.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("recorder already started")
	}
	if r.stopped {
		return errors.New("recorder already stopped")
	}
	r.started = true
	go r.pump()
	return nil
}

// Stop halts the pump. Safe to call multiple times and before Start.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()
	close(r.done)
}

func (r *Recorder) pump() {
	buf := make([]float32, 4096)
	for {
		select {
		case <-r.done:
			return
		default:
		}

		n, err := r.source.Read(buf)
		if n > 0 {
			payload, merr := json.Marshal(map[string]string{
				"type":  "input_audio_buffer.append",
				"audio": EncodeBase64Chunked(EncodePCM16(buf[:n])),
			})
			if merr == nil {
				r.emit(payload)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("[Realtime] Audio source read error: %v", err)
			}
			return
		}
	}
}
