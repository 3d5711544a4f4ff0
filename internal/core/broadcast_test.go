package core

import (
	"errors"
	"testing"

	"github.com/stagecast/stagecast/internal/domain"
)

func TestPublishExcludesOrigin(t *testing.T) {
	b := NewEventBroadcaster()
	origin := &fakeConn{}
	peer := &fakeConn{}
	b.Subscribe("s1", "origin", origin)
	b.Subscribe("s1", "peer", peer)

	b.Publish("s1", domain.ActionParticipantAdded, map[string]string{"userId": "u1"}, "origin")

	if len(origin.events()) != 0 {
		t.Fatal("origin must not receive its own event")
	}
	if n := peer.countOf(domain.ActionParticipantAdded); n != 1 {
		t.Fatalf("peer expected 1 event, got %d", n)
	}
}

func TestPublishReachesAllWithoutExclusion(t *testing.T) {
	b := NewEventBroadcaster()
	a := &fakeConn{}
	c := &fakeConn{}
	b.Subscribe("s1", "a", a)
	b.Subscribe("s1", "c", c)

	b.Publish("s1", domain.ActionParticipantRemoved, nil, "")

	if a.countOf(domain.ActionParticipantRemoved) != 1 || c.countOf(domain.ActionParticipantRemoved) != 1 {
		t.Fatal("all subscribers should receive the event")
	}
}

func TestPublishDropsSlowConsumerOnly(t *testing.T) {
	b := NewEventBroadcaster()
	slow := &fakeConn{fail: true}
	healthy := &fakeConn{}
	b.Subscribe("s1", "slow", slow)
	b.Subscribe("s1", "healthy", healthy)

	b.Publish("s1", domain.ActionProducerAdded, nil, "")

	if n := healthy.countOf(domain.ActionProducerAdded); n != 1 {
		t.Fatalf("healthy subscriber expected 1 event, got %d", n)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewEventBroadcaster()
	conn := &fakeConn{}
	b.Subscribe("s1", "x", conn)
	b.Unsubscribe("s1", "x")

	b.Publish("s1", domain.ActionParticipantAdded, nil, "")

	if len(conn.events()) != 0 {
		t.Fatal("unsubscribed connection still received events")
	}
}

func TestSendToUnknownTarget(t *testing.T) {
	b := NewEventBroadcaster()
	if err := b.SendTo("s1", "ghost", map[string]string{}); !errors.Is(err, ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestSendToDeliversPayload(t *testing.T) {
	b := NewEventBroadcaster()
	conn := &fakeConn{}
	b.Subscribe("s1", "target", conn)

	if err := b.SendTo("s1", "target", map[string]string{"type": "p2p/offer-made"}); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if len(conn.frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(conn.frames))
	}
}
