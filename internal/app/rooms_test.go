package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dterekhov/roomcast/internal/core"
	"github.com/dterekhov/roomcast/internal/media"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func newTestRooms(t *testing.T) *Rooms {
	t.Helper()
	eng, err := media.NewEngine(media.Options{MinPort: 41000, MaxPort: 41100, AnnouncedIP: "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	return NewRooms(core.NewStore(eng, media.DefaultCodecs()))
}

func TestAttachCreatesAndReusesRoom(t *testing.T) {
	rooms := newTestRooms(t)

	r1, err := rooms.Attach(context.Background(), "alpha", "x", nopConn{})
	if err != nil {
		t.Fatal(err)
	}
	if r1.ID != "alpha" || r1.MemberCount() != 1 {
		t.Fatalf("unexpected room after first attach: id=%s members=%d", r1.ID, r1.MemberCount())
	}

	r2, err := rooms.Attach(context.Background(), "alpha", "y", nopConn{})
	if err != nil {
		t.Fatal(err)
	}
	if r2 != r1 {
		t.Fatal("second attach created a new room")
	}
	if r1.MemberCount() != 2 {
		t.Fatalf("expected 2 members, got %d", r1.MemberCount())
	}
}

func TestDetachDeletesOnlyWhenEmpty(t *testing.T) {
	rooms := newTestRooms(t)
	if _, err := rooms.Attach(context.Background(), "alpha", "x", nopConn{}); err != nil {
		t.Fatal(err)
	}
	if _, err := rooms.Attach(context.Background(), "alpha", "y", nopConn{}); err != nil {
		t.Fatal(err)
	}

	rooms.Detach("alpha", "x")
	if _, ok := rooms.Get("alpha"); !ok {
		t.Fatal("room deleted while a participant remained")
	}

	rooms.Detach("alpha", "y")
	if _, ok := rooms.Get("alpha"); ok {
		t.Fatal("room survived last detach")
	}
}

// Attach must keep the store entry alive for as long as the member is
// registered: a detach of another connection racing in must never tear
// down a room somebody just attached to.
func TestAttachVisibleUnderConcurrentDetach(t *testing.T) {
	rooms := newTestRooms(t)

	const workers = 8
	const cycles = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < cycles; i++ {
				sid := core.SessionID(fmt.Sprintf("w%d-%d", w, i))
				room, err := rooms.Attach(context.Background(), "alpha", sid, nopConn{})
				if err != nil {
					t.Errorf("attach: %v", err)
					return
				}
				got, ok := rooms.Get("alpha")
				if !ok {
					t.Errorf("room missing right after attach")
					return
				}
				if got != room {
					t.Errorf("attach and lookup disagree on the room instance")
					return
				}
				rooms.Detach("alpha", sid)
			}
		}(w)
	}
	wg.Wait()
}

func TestDetachUnknownRoomIsNoop(t *testing.T) {
	rooms := newTestRooms(t)
	rooms.Detach("ghost", "x")
	if len(rooms.Snapshot()) != 0 {
		t.Fatal("snapshot not empty")
	}
}
