package core

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stagecast/stagecast/internal/domain"
)

func newTestStage(engine Engine) (*Stage, *EventBroadcaster) {
	events := NewEventBroadcaster()
	return NewStage("stage-1", engine, events), events
}

func addParticipant(t *testing.T, stage *Stage, n int) (*ParticipantSession, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sess := NewParticipantSession(testIdentity(n), domain.ConnectionID(fmt.Sprintf("conn-%d", n)), stage, conn)
	if err := stage.AddParticipant(sess); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
	return sess, conn
}

func TestAddRemoveMatchesRosterSize(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})

	for i := 0; i < 5; i++ {
		addParticipant(t, stage, i)
	}
	stage.RemoveParticipant("conn-1")
	stage.RemoveParticipant("conn-3")
	stage.RemoveParticipant("conn-does-not-exist")

	if got := len(stage.Participants("")); got != 3 {
		t.Fatalf("expected 3 participants, got %d", got)
	}
}

func TestAddDuplicateConnectionFails(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	sess, _ := addParticipant(t, stage, 1)

	dup := NewParticipantSession(testIdentity(2), sess.ConnectionID(), stage, &fakeConn{})
	if err := stage.AddParticipant(dup); err != ErrDuplicateParticipant {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}
	if got := stage.ParticipantCount(); got != 1 {
		t.Fatalf("duplicate add changed membership, count %d", got)
	}
}

func TestRemoveAbsentEmitsNothing(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	_, conn := addParticipant(t, stage, 1)

	stage.RemoveParticipant("conn-never-added")

	if n := conn.countOf(domain.ActionParticipantRemoved); n != 0 {
		t.Fatalf("expected no participant/removed events, got %d", n)
	}
}

func TestRemoveAnnouncesExactlyOnce(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	_, observer := addParticipant(t, stage, 1)
	addParticipant(t, stage, 2)

	stage.RemoveParticipant("conn-2")
	stage.RemoveParticipant("conn-2")

	if n := observer.countOf(domain.ActionParticipantRemoved); n != 1 {
		t.Fatalf("expected exactly one participant/removed, got %d", n)
	}
}

func TestAddAnnouncesToPeersNotSelf(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	_, first := addParticipant(t, stage, 1)
	_, second := addParticipant(t, stage, 2)

	if n := first.countOf(domain.ActionParticipantAdded); n != 1 {
		t.Fatalf("peer expected 1 participant/added, got %d", n)
	}
	if n := second.countOf(domain.ActionParticipantAdded); n != 0 {
		t.Fatalf("joiner should not see its own announcement, got %d", n)
	}
}

func TestParticipantsSnapshotIsPointInTime(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	addParticipant(t, stage, 1)

	snapshot := stage.Participants("")
	addParticipant(t, stage, 2)

	if len(snapshot) != 1 {
		t.Fatalf("snapshot changed after later mutation: %d entries", len(snapshot))
	}
}

func TestParticipantsExcludesCaller(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	addParticipant(t, stage, 1)
	addParticipant(t, stage, 2)

	roster := stage.Participants("conn-1")
	if len(roster) != 1 || roster[0].ConnectionID != "conn-2" {
		t.Fatalf("unexpected roster %+v", roster)
	}
}

func TestProducersEmptyIsNeverNil(t *testing.T) {
	stage, _ := newTestStage(&fakeEngine{})
	addParticipant(t, stage, 1)

	producers := stage.Producers("")
	if len(producers) != 1 {
		t.Fatalf("expected one entry, got %d", len(producers))
	}
	if producers[0].ProducerIDs == nil {
		t.Fatal("ProducerIDs must be an empty sequence, not nil")
	}
	if len(producers[0].ProducerIDs) != 0 {
		t.Fatalf("expected no producer ids, got %v", producers[0].ProducerIDs)
	}
}

func TestRemoveReleasesResources(t *testing.T) {
	engine := &fakeEngine{}
	stage, _ := newTestStage(engine)
	sess, _ := addParticipant(t, stage, 1)

	if _, err := sess.AcquireTransport(context.Background(), DirectionSend, nil); err != nil {
		t.Fatalf("AcquireTransport: %v", err)
	}

	stage.RemoveParticipant(sess.ConnectionID())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	if len(engine.transports) != 1 || !engine.transports[0].closed {
		t.Fatal("expected the acquired transport to be closed on removal")
	}
}

func TestRouterCreatedExactlyOnceUnderConcurrency(t *testing.T) {
	engine := &fakeEngine{}
	stage, _ := newTestStage(engine)

	var wg sync.WaitGroup
	routers := make([]RouterHandle, 16)
	for i := range routers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := stage.Router(context.Background())
			if err != nil {
				t.Errorf("Router: %v", err)
				return
			}
			routers[i] = r
		}(i)
	}
	wg.Wait()

	if n := engine.routerCalls.Load(); n != 1 {
		t.Fatalf("expected exactly one router creation, got %d", n)
	}
	for _, r := range routers {
		if r != routers[0] {
			t.Fatal("concurrent callers observed different routers")
		}
	}
}

func TestRouterRetriesAfterFailure(t *testing.T) {
	engine := &fakeEngine{}
	engine.routerErr = fmt.Errorf("worker down")
	stage, _ := newTestStage(engine)

	if _, err := stage.Router(context.Background()); err == nil {
		t.Fatal("expected first creation to fail")
	}

	engine.mu.Lock()
	engine.routerErr = nil
	engine.mu.Unlock()

	if _, err := stage.Router(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}
