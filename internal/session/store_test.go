package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_DefaultsToIdle(t *testing.T) {
	store := NewMemoryStore()

	st := store.Get(42)
	require.NotNil(t, st)
	assert.Equal(t, ModeIdle, st.Mode())
	assert.True(t, IsIdle(st))
}

func TestMemoryStore_SetAndReset(t *testing.T) {
	store := NewMemoryStore()

	store.Set(1, WaitSelectionMode{Player: Player{ID: "5123", Name: "Alpha"}})
	store.Set(2, WaitCheckCode{})
	assert.Equal(t, 2, store.Active())

	st, ok := store.Get(1).(WaitSelectionMode)
	require.True(t, ok)
	assert.Equal(t, "Alpha", st.Player.Name)

	store.Reset(1)
	assert.Equal(t, ModeIdle, store.Get(1).Mode())
	assert.Equal(t, ModeWaitCheckCode, store.Get(2).Mode())

	// Setting Idle drops the session entirely
	store.Set(2, Idle{})
	assert.Equal(t, 0, store.Active())
}

func TestMemoryStore_CopiesPayload(t *testing.T) {
	store := NewMemoryStore()

	players := []Player{{ID: "111", Name: "A"}, {ID: "222", Name: "B"}}
	store.Set(1, WaitBulkCodes{Players: players})
	players[0].Name = "mutated"

	st := store.Get(1).(WaitBulkCodes)
	assert.Equal(t, "A", st.Players[0].Name)
}

func TestModes_AreDistinct(t *testing.T) {
	states := []State{
		Idle{}, WaitPlayerLookup{}, WaitCheckCode{}, WaitActivatePlayerID{},
		WaitSelectionMode{}, WaitActivateCodeSingle{}, WaitActivateCodeBulkStack{},
		WaitBulkIDs{}, WaitBulkCodes{}, WaitBulkConfirm{}, WaitTicketMessage{},
	}

	seen := make(map[Mode]bool)
	for _, st := range states {
		assert.False(t, seen[st.Mode()], "duplicate mode %s", st.Mode())
		seen[st.Mode()] = true
	}
	assert.Len(t, seen, 11)
}

func TestLocker_SerializesSameChat(t *testing.T) {
	locker := NewLocker()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(7)
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.locks)
}

func TestLocker_DifferentChatsDoNotBlock(t *testing.T) {
	locker := NewLocker()

	unlockA := locker.Lock(1)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locker.Lock(2)
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for another chat was blocked")
	}
}
