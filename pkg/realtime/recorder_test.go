package realtime

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"testing"
	"time"
)

func decodePCM16(t *testing.T, data []byte) []int16 {
	t.Helper()
	if len(data)%2 != 0 {
		t.Fatalf("odd PCM byte length %d", len(data))
	}
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    []int16
	}{
		{"silence", []float32{0, 0, 0}, []int16{0, 0, 0}},
		{"full scale", []float32{1, -1}, []int16{0x7FFF, -0x8000}},
		{"clamped", []float32{2.5, -3}, []int16{0x7FFF, -0x8000}},
		{"half scale", []float32{0.5, -0.5}, []int16{0x3FFF, -0x4000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodePCM16(t, EncodePCM16(tt.samples))
			if len(got) != len(tt.want) {
				t.Fatalf("length: got %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodePCM16Roundtrip(t *testing.T) {
	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 50))
	}

	decoded := decodePCM16(t, EncodePCM16(samples))
	for i, v := range decoded {
		var back float32
		if v < 0 {
			back = float32(v) / 0x8000
		} else {
			back = float32(v) / 0x7FFF
		}
		if diff := math.Abs(float64(back - samples[i])); diff > 1.5/0x7FFF {
			t.Fatalf("sample %d: roundtrip error %f exceeds quantization step", i, diff)
		}
	}
}

func TestEncodeBase64ChunkedMatchesSinglePass(t *testing.T) {
	sizes := []int{0, 1, 2, 3, base64ChunkSize - 1, base64ChunkSize, base64ChunkSize + 1, 3 * base64ChunkSize}
	for _, size := range sizes {
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(i * 31)
		}
		want := base64.StdEncoding.EncodeToString(data)
		if got := EncodeBase64Chunked(data); got != want {
			t.Errorf("size %d: chunked encoding differs from single-pass", size)
		}
	}
}

// sliceAudioSource serves a fixed set of frames, then EOF.
type sliceAudioSource struct {
	frames [][]float32
	closed bool
}

func (s *sliceAudioSource) Read(buf []float32) (int, error) {
	if len(s.frames) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, s.frames[0])
	s.frames = s.frames[1:]
	return n, nil
}

func (s *sliceAudioSource) Close() error {
	s.closed = true
	return nil
}

func TestRecorderEmitsAppendEvents(t *testing.T) {
	source := &sliceAudioSource{frames: [][]float32{
		{0.1, 0.2, 0.3},
		{-0.5, 0.5},
	}}

	emitted := make(chan []byte, 8)
	rec := NewRecorder(source, func(payload []byte) { emitted <- payload })
	if err := rec.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case payload := <-emitted:
			var event struct {
				Type  string `json:"type"`
				Audio string `json:"audio"`
			}
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("event %d: %v", i, err)
			}
			if event.Type != "input_audio_buffer.append" {
				t.Errorf("event %d type: got %q", i, event.Type)
			}
			if _, err := base64.StdEncoding.DecodeString(event.Audio); err != nil {
				t.Errorf("event %d audio not valid base64: %v", i, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	// Pump exits on EOF; no further events arrive.
	select {
	case payload := <-emitted:
		t.Fatalf("unexpected event after EOF: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecorderStartOnce(t *testing.T) {
	rec := NewRecorder(&sliceAudioSource{}, func([]byte) {})
	if err := rec.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := rec.Start(); err == nil {
		t.Error("second start should fail")
	}
}

func TestRecorderStopIdempotent(t *testing.T) {
	rec := NewRecorder(&sliceAudioSource{}, func([]byte) {})
	rec.Stop()
	rec.Stop() // must not panic
	if err := rec.Start(); err == nil {
		t.Error("start after stop should fail")
	}
}
