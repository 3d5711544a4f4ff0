package sfu

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/stagecast/stagecast/internal/core"
)

// Transport is one PeerConnection between a participant and the engine.
// The server offers, the client answers through Connect.
type Transport struct {
	id     string
	dir    core.Direction
	pc     *webrtc.PeerConnection
	router *Router

	connectParams json.RawMessage

	mu        sync.Mutex
	closed    bool
	onClose   []func()
	pending   []*Producer
	unclaimed []*webrtc.TrackRemote
}

func newTransport(router *Router, dir core.Direction, pc *webrtc.PeerConnection) *Transport {
	t := &Transport{
		id:     uuid.NewString(),
		dir:    dir,
		pc:     pc,
		router: router,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "sfu").Str("transport", t.id).Str("state", s.String()).Msg("transport state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.fireClose()
		}
	})

	if dir == core.DirectionSend {
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			t.handleRemoteTrack(track)
		})
	}

	return t
}

func (t *Transport) ID() string { return t.id }

// negotiate builds the server-side offer, waits for ICE gathering and
// stores the connect payload for the client. Honors ctx so a stuck
// gathering cannot hang the caller.
func (t *Transport) negotiate(ctx context.Context) error {
	if t.dir == core.DirectionSend {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return err
			}
		}
	}

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	params, err := json.Marshal(map[string]any{
		"id":    t.id,
		"offer": t.pc.LocalDescription(),
	})
	if err != nil {
		return err
	}
	t.connectParams = params
	return nil
}

func (t *Transport) ConnectParams() json.RawMessage { return t.connectParams }

// Connect applies the client's answer. The payload is the opaque blob
// the client produced from ConnectParams.
func (t *Transport) Connect(params json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(params, &answer); err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(answer)
}

// OnClose registers fn to run once when the transport dies. A handler
// registered after close runs immediately.
func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		fn()
		return
	}
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *Transport) fireClose() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	handlers := t.onClose
	t.onClose = nil
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, p := range pending {
		_ = p.Close()
	}
	for _, fn := range handlers {
		fn()
	}
}

func (t *Transport) Close() error {
	err := t.pc.Close()
	t.fireClose()
	return err
}

// bindProducer attaches the producer to an already arrived unclaimed
// track of the same kind, or queues it for the next OnTrack. A producer
// arriving after the transport died is closed on the spot.
func (t *Transport) bindProducer(p *Producer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = p.Close()
		return
	}
	for i, track := range t.unclaimed {
		if track.Kind().String() == p.kind {
			t.unclaimed = append(t.unclaimed[:i], t.unclaimed[i+1:]...)
			t.attach(p, track)
			return
		}
	}
	t.pending = append(t.pending, p)
}

func (t *Transport) handleRemoteTrack(track *webrtc.TrackRemote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.pending {
		if p.kind == track.Kind().String() {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			t.attach(p, track)
			return
		}
	}
	t.unclaimed = append(t.unclaimed, track)
}

func (t *Transport) attach(p *Producer, track *webrtc.TrackRemote) {
	logger := log.With().
		Str("module", "sfu").
		Str("transport", t.id).
		Str("producer", p.id).
		Logger()
	logger.Info().Str("kind", track.Kind().String()).Msg("remote track bound to producer")
	p.relay.Attach(track, &logger)
}
