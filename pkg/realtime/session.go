package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// State is the session lifecycle position. Transitions are guarded: an
// operation invalid for the current state returns an error instead of
// relying on nil-field checks.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateNegotiating
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// AudioSink receives the remote audio stream. Start may fail transiently
// (the playback-device analog of an autoplay block); the session retries it
// before reporting the stream blocked.
type AudioSink interface {
	Start() error
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// playbackRetries is how many times sink startup is attempted before the
// session reports audio_blocked and carries on without playback.
const (
	playbackRetries    = 3
	playbackRetryDelay = 300 * time.Millisecond
	defaultConnectWait = 30 * time.Second
	dataChannelName    = "oai-events"
)

// Config describes one voice session.
type Config struct {
	Tokens TokenSource
	// Mic acquires the capture source. It runs before any network step so
	// implementations can tie device setup to the initiating call chain.
	Mic  func(ctx context.Context) (AudioSource, error)
	Sink AudioSink

	Model          string
	BaseURL        string        // defaults to DefaultBaseURL
	ConnectTimeout time.Duration // defaults to 30s
	HTTPClient     *http.Client
	ICEServers     []string // defaults to public STUN
}

// Session manages the full lifecycle of one voice conversation: capture
// source, peer connection, data channel, and playback sink. A Session owns
// its resources exclusively and is not reusable after Disconnect.
type Session struct {
	cfg     Config
	handler Handler

	mu       sync.Mutex
	state    State
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	source   AudioSource
	recorder *Recorder
	blocked  bool // audio_blocked already reported
}

// NewSession creates an idle session. handler receives every remote event
// plus the synthesized audio_blocked and error types.
func NewSession(cfg Config, handler Handler) *Session {
	if handler == nil {
		handler = func(Event) {}
	}
	return &Session{cfg: cfg, handler: handler}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect runs the session through Acquiring and Negotiating into Connected.
// Any failure tears down everything acquired so far and returns the error;
// the session ends in Disconnected and cannot be reused. The whole phase is
// bounded by ctx (or the default connect timeout), so a hung token fetch or
// SDP exchange cannot stall startup forever.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot connect from state %q", state)
	}
	s.state = StateAcquiring
	s.mu.Unlock()

	timeout := s.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectWait
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.teardown()
		return err
	}

	s.mu.Lock()
	if s.state != StateNegotiating {
		// Disconnect raced the negotiation; resources are already released.
		s.mu.Unlock()
		return errSessionClosed
	}
	s.state = StateConnected
	s.mu.Unlock()
	return nil
}

var errSessionClosed = errors.New("session disconnected")

// store assigns a just-acquired resource unless the session was torn down
// mid-negotiation, in which case the caller must release it.
func (s *Session) store(assign func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return false
	}
	assign()
	return true
}

func (s *Session) connect(ctx context.Context) error {
	// Capture device first: device acquisition must precede every network
	// step so failures are cheap and implementations can bind device setup
	// to the user-initiated call.
	source, err := s.cfg.Mic(ctx)
	if err != nil {
		return micError(err)
	}
	if !s.store(func() { s.source = source; s.state = StateNegotiating }) {
		source.Close()
		return errSessionClosed
	}

	key, err := s.cfg.Tokens.EphemeralKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ephemeral token: %w", err)
	}

	iceServers := s.cfg.ICEServers
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	})
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	if !s.store(func() { s.pc = pc }) {
		pc.Close()
		return errSessionClosed
	}

	dc, err := pc.CreateDataChannel(dataChannelName, nil)
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	if !s.store(func() { s.dc = dc }) {
		dc.Close()
		return errSessionClosed
	}

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.forwardRemote(msg.Data)
	})
	dc.OnOpen(func() {
		s.startRecorder()
	})

	// The audio m-line needs a local track even though captured frames
	// travel over the data channel as PCM events.
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "microphone",
	)
	if err != nil {
		return fmt.Errorf("failed to create local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("failed to add local track: %w", err)
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go s.playRemote(remote)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.onConnectionState(state)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	gatherDone := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	select {
	case <-gatherDone:
	case <-ctx.Done():
		return fmt.Errorf("ICE gathering interrupted: %w", ctx.Err())
	}

	base := s.cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := s.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	answerSDP, err := exchangeSDP(ctx, client, base, s.cfg.Model, key, pc.LocalDescription().SDP)
	if err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	return nil
}

// SendText pushes a user text message. Two sequential data-channel sends are
// required: the item create alone does not make the service reply; the
// response.create trigger does.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.dc == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot send in state %q", state)
	}
	dc := s.dc
	s.mu.Unlock()

	item, _ := json.Marshal(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type": "message",
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "input_text", "text": text},
			},
		},
	})
	if err := dc.SendText(string(item)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	trigger, _ := json.Marshal(map[string]string{"type": "response.create"})
	if err := dc.SendText(string(trigger)); err != nil {
		return fmt.Errorf("failed to trigger response: %w", err)
	}
	return nil
}

// Disconnect releases every session resource. Safe to call in any state,
// including before Connect and more than once.
func (s *Session) Disconnect() {
	s.teardown()
}

func (s *Session) forwardRemote(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Printf("[Realtime] Dropping undecodable event: %v", err)
		return
	}
	s.handler(Event{Type: head.Type, Raw: append([]byte(nil), data...)})
}

func (s *Session) startRecorder() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.source == nil || s.recorder != nil {
		s.mu.Unlock()
		return
	}
	dc := s.dc
	rec := NewRecorder(s.source, func(payload []byte) {
		if err := dc.SendText(string(payload)); err != nil {
			log.Printf("[Realtime] Failed to send audio frame: %v", err)
		}
	})
	s.recorder = rec
	s.mu.Unlock()

	if err := rec.Start(); err != nil {
		log.Printf("[Realtime] Recorder start failed: %v", err)
	}
}

// playRemote pumps the remote track into the sink. Sink startup gets a
// bounded number of attempts; on exhaustion the caller is told once via
// audio_blocked so a UI can ask for a manual unblock, and the session stays
// up without playback.
func (s *Session) playRemote(remote *webrtc.TrackRemote) {
	sink := s.cfg.Sink
	if sink == nil {
		return
	}

	started := false
	for attempt := 1; attempt <= playbackRetries; attempt++ {
		if err := sink.Start(); err != nil {
			log.Printf("[Realtime] Playback start attempt %d/%d failed: %v", attempt, playbackRetries, err)
			time.Sleep(playbackRetryDelay)
			continue
		}
		started = true
		break
	}
	if !started {
		s.mu.Lock()
		alreadyReported := s.blocked
		s.blocked = true
		s.mu.Unlock()
		if !alreadyReported {
			s.handler(localEvent(MessageTypeAudioBlocked, "audio playback blocked, tap to enable sound"))
		}
		return
	}

	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[Realtime] Remote track read error: %v", err)
			}
			return
		}
		if err := sink.WriteRTP(pkt); err != nil {
			return
		}
	}
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		// Remote-initiated failure releases resources through the same path
		// as an explicit Disconnect, then the caller is told.
		s.mu.Lock()
		wasDisconnected := s.state == StateDisconnected
		s.mu.Unlock()
		if wasDisconnected {
			return
		}
		s.teardown()
		s.handler(localEvent(MessageTypeError, "connection lost"))
	}
}

// teardown releases resources in dependency order: recorder before the data
// channel it writes to, channel before the peer connection, local capture
// before the playback sink. Idempotent.
func (s *Session) teardown() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	recorder := s.recorder
	dc := s.dc
	pc := s.pc
	source := s.source
	s.recorder, s.dc, s.pc, s.source = nil, nil, nil, nil
	s.mu.Unlock()

	if recorder != nil {
		recorder.Stop()
	}
	if dc != nil {
		if err := dc.Close(); err != nil {
			log.Printf("[Realtime] Data channel close: %v", err)
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Printf("[Realtime] Peer connection close: %v", err)
		}
	}
	if source != nil {
		if err := source.Close(); err != nil {
			log.Printf("[Realtime] Audio source close: %v", err)
		}
	}
	if s.cfg.Sink != nil {
		if err := s.cfg.Sink.Close(); err != nil {
			log.Printf("[Realtime] Audio sink close: %v", err)
		}
	}
}

// micError maps capture failures to user-facing messages.
func micError(err error) error {
	msg := "could not access microphone"
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		msg = "microphone setup timed out"
	case errors.Is(err, ErrPermissionDenied):
		msg = "microphone access denied, check permissions"
	case errors.Is(err, ErrDeviceNotFound):
		msg = "no microphone found"
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Capture failure classes an AudioSource factory can wrap to get specific
// user-facing messages.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
)
