package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Relay reads RTP from one producer's remote track and forwards it to
// every consumer OutTrack that is not muted.
type Relay struct {
	mu   sync.RWMutex
	src  *webrtc.TrackRemote
	outs map[string]*OutTrack

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRelay() *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		outs:   make(map[string]*OutTrack),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Attach binds the source track and starts the forward loop. Only the
// first attach wins; a producer has exactly one source.
func (r *Relay) Attach(track *webrtc.TrackRemote, logger *zerolog.Logger) {
	r.mu.Lock()
	if r.src != nil {
		r.mu.Unlock()
		return
	}
	r.src = track
	r.mu.Unlock()

	go r.loop(track, logger)
}

func (r *Relay) Stop() {
	r.cancel()
	r.markAllDelete()
}

func (r *Relay) AddOutTrack(consumerID string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[consumerID] = ot
}

func (r *Relay) MarkOutTrackDelete(consumerID string) {
	r.mu.RLock()
	ot, ok := r.outs[consumerID]
	r.mu.RUnlock()
	if ok {
		ot.MarkDelete()
	}
}

func (r *Relay) loop(track *webrtc.TrackRemote, logger *zerolog.Logger) {
	for {
		select {
		case <-r.ctx.Done():
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay read RTP error, stopping")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*OutTrack, len(r.outs))
	maps.Copy(snapshot, r.outs)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, id)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Debug().Err(err).Str("consumer", id).Msg("relay write RTP error, dropping out track")
				ot.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup runs outside the RLock.
	if len(dirty) > 0 {
		r.mu.Lock()
		for _, id := range dirty {
			delete(r.outs, id)
		}
		r.mu.Unlock()
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outs {
		ot.MarkDelete()
	}
}
