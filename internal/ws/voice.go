package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"sync"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/service"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/pkg/realtime"
	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// VoiceHandler bridges a browser WebSocket to a server-side realtime voice
// session: binary frames carry microphone PCM upstream and synthesized audio
// downstream, text frames carry JSON events both ways.
type VoiceHandler struct {
	auth    *service.AuthService
	apiKey  string
	model   string
	voice   string
	baseURL string
}

// NewVoiceHandler creates a new VoiceHandler.
func NewVoiceHandler(auth *service.AuthService, apiKey, model, voice string) *VoiceHandler {
	return &VoiceHandler{
		auth:   auth,
		apiKey: apiKey,
		model:  model,
		voice:  voice,
	}
}

// Handle upgrades HTTP to WebSocket and runs one voice session.
// URL: /realtime/voice?token=JWT_TOKEN
func (h *VoiceHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		http.Error(w, "realtime voice is not configured", http.StatusServiceUnavailable)
		return
	}

	// Authenticate via query param token
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("🎙️ Voice session connected (user: %s)", claims.Email)

	writer := &wsWriter{conn: conn}
	source := newWSAudioSource()
	sink := &wsAudioSink{writer: writer}

	session := realtime.NewSession(realtime.Config{
		Tokens: &realtime.APITokenSource{
			APIKey:  h.apiKey,
			Model:   h.model,
			Voice:   h.voice,
			BaseURL: h.baseURL,
		},
		Mic: func(context.Context) (realtime.AudioSource, error) {
			return source, nil
		},
		Sink:    sink,
		Model:   h.model,
		BaseURL: h.baseURL,
	}, func(event realtime.Event) {
		if err := writer.WriteText(event.Raw); err != nil {
			log.Printf("voice event forward error: %v", err)
		}
	})
	defer session.Disconnect()

	if err := session.Connect(r.Context()); err != nil {
		log.Printf("voice session connect failed: %v", err)
		payload, _ := json.Marshal(map[string]string{"type": "error", "message": err.Error()})
		_ = writer.WriteText(payload)
		return
	}

	// Stream WebSocket input → session until the client hangs up
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			source.push(decodePCMFrame(msg))
		case websocket.TextMessage:
			var cmd struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			switch cmd.Type {
			case "text":
				if err := session.SendText(cmd.Text); err != nil {
					log.Printf("voice send failed: %v", err)
				}
			case "disconnect":
				return
			}
		}
	}
}

// wsWriter serializes concurrent writers onto one WebSocket connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteText(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsWriter) WriteBinary(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

// wsAudioSource buffers client PCM frames for the session's recorder.
type wsAudioSource struct {
	mu     sync.Mutex
	closed bool
	frames chan []float32
	rest   []float32
}

func newWSAudioSource() *wsAudioSource {
	return &wsAudioSource{frames: make(chan []float32, 32)}
}

func (s *wsAudioSource) push(samples []float32) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.frames <- samples:
	default:
		// Drop the frame rather than stall the read loop on a slow consumer.
	}
}

func (s *wsAudioSource) Read(buf []float32) (int, error) {
	if len(s.rest) == 0 {
		frame, ok := <-s.frames
		if !ok {
			return 0, io.EOF
		}
		s.rest = frame
	}
	n := copy(buf, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

func (s *wsAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// wsAudioSink relays remote audio packets to the client as binary frames.
type wsAudioSink struct {
	writer *wsWriter
}

func (s *wsAudioSink) Start() error { return nil }

func (s *wsAudioSink) WriteRTP(pkt *rtp.Packet) error {
	return s.writer.WriteBinary(pkt.Payload)
}

func (s *wsAudioSink) Close() error { return nil }

// decodePCMFrame interprets a binary frame as little-endian float32 PCM.
func decodePCMFrame(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
