package rooms

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestGenerateCode(t *testing.T) {
	codeFormat := regexp.MustCompile(`^[A-Z0-9]{8}$`)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		assert.NoError(t, err, "expected no error generating code")
		assert.Regexp(t, codeFormat, code, "expected 8-char uppercase alphanumeric code")
		seen[code] = struct{}{}
	}

	// 100 draws from a 36^8 space colliding would mean a broken generator
	assert.Len(t, seen, 100, "expected generated codes to be distinct")
}

func TestIsJoinable(t *testing.T) {
	now := time.Now().UTC()
	room := database.Room{
		IsActive:  true,
		MaxUsers:  2,
		ExpiresAt: now.Add(time.Hour),
	}

	tcases := []struct {
		name     string
		room     database.Room
		members  int
		joinable bool
	}{
		{name: "open room with free slot", room: room, members: 1, joinable: true},
		{name: "room at capacity", room: room, members: 2, joinable: false},
		{
			name: "inactive room",
			room: database.Room{IsActive: false, MaxUsers: 2, ExpiresAt: now.Add(time.Hour)},
		},
		{
			name: "expired room",
			room: database.Room{IsActive: true, MaxUsers: 2, ExpiresAt: now.Add(-time.Minute)},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.joinable, IsJoinable(tc.room, tc.members, now))
		})
	}
}

func TestCreateAndJoin(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("CreateRoomWithHost", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return p.MaxUsers == 2 && p.Language == "en" && len(p.Code) == 8
		}), 1).Return(database.Room{Id: 7, Code: "AAAABBBB"}, nil).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		room, err := svc.CreateAndJoin(1, RoomSpec{Name: "Spanish Practice"})
		assert.NoError(t, err)
		assert.Equal(t, 7, room.Id, "expected created room to be returned")
	})

	t.Run("retries on duplicate code", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("CreateRoomWithHost", mock.Anything, 1).
			Return(database.Room{}, database.ErrDuplicateCode).Once()
		db.On("CreateRoomWithHost", mock.Anything, 1).
			Return(database.Room{Id: 3}, nil).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		room, err := svc.CreateAndJoin(1, RoomSpec{Name: "retry", Capacity: 4, Language: "es"})
		assert.NoError(t, err)
		assert.Equal(t, 3, room.Id, "expected room from second attempt")
	})

	t.Run("surfaces already elsewhere", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("CreateRoomWithHost", mock.Anything, 1).
			Return(database.Room{}, database.ErrAlreadyElsewhere).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		_, err := svc.CreateAndJoin(1, RoomSpec{Capacity: 2, Language: "es"})
		assert.ErrorIs(t, err, database.ErrAlreadyElsewhere)
	})
}

// countingRepository serializes joins against a fixed-capacity room the way
// the registry's row lock does, so capacity can be raced from many goroutines.
type countingRepository struct {
	database.MockOnlinexRepository

	mu       sync.Mutex
	room     database.Room
	members  map[int]struct{}
	nextId   int
	capacity int
}

func (r *countingRepository) JoinRoom(code string, accountId int) (database.Room, database.RoomMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if code != r.room.Code {
		return database.Room{}, database.RoomMember{}, database.ErrRoomNotFound
	}
	if len(r.members) >= r.capacity {
		return database.Room{}, database.RoomMember{}, database.ErrRoomFull
	}
	if _, ok := r.members[accountId]; ok {
		return database.Room{}, database.RoomMember{}, database.ErrAlreadyMember
	}

	r.members[accountId] = struct{}{}
	r.nextId++
	return r.room, database.RoomMember{
		Id:        r.nextId,
		RoomId:    r.room.Id,
		AccountId: accountId,
		IsActive:  true,
	}, nil
}

func TestJoinCapacityUnderContention(t *testing.T) {
	const (
		capacity = 2
		joiners  = 16
	)

	db := &countingRepository{
		room:     database.Room{Id: 1, Code: "ABCD1234", MaxUsers: capacity, IsActive: true, ExpiresAt: time.Now().Add(time.Hour)},
		members:  make(map[int]struct{}),
		capacity: capacity,
	}
	svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		joined  int
		refused int
	)
	for i := 1; i <= joiners; i++ {
		wg.Add(1)
		go func(accountId int) {
			defer wg.Done()
			_, member, err := svc.Join("ABCD1234", accountId)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.Equal(t, accountId, member.AccountId)
				joined++
			case errors.Is(err, database.ErrRoomFull):
				refused++
			default:
				t.Errorf("unexpected join error for account %d: %v", accountId, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, joined, "expected joins to succeed for exactly the room capacity")
	assert.Equal(t, joiners-capacity, refused, "expected every other join refused as full")
	assert.Len(t, db.members, capacity, "expected no membership rows past capacity")
}

func TestLeave(t *testing.T) {
	t.Run("host handoff", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("LeaveRoom", "ABCD1234", 1).Return(
			database.Room{Id: 1, Code: "ABCD1234"},
			database.LeaveResult{WasHost: true, NewHostId: 2},
			nil,
		).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		_, result, err := svc.Leave("ABCD1234", 1)
		assert.NoError(t, err)
		assert.True(t, result.WasHost, "expected leaver to have been host")
		assert.Equal(t, 2, result.NewHostId, "expected host handoff to account 2")
	})

	t.Run("not a member", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("LeaveRoom", "ABCD1234", 9).Return(
			database.Room{}, database.LeaveResult{}, database.ErrNotAMember,
		).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		_, _, err := svc.Leave("ABCD1234", 9)
		assert.ErrorIs(t, err, database.ErrNotAMember)
	})
}

func TestSearch(t *testing.T) {
	t.Run("returns joinable room", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		want := database.Room{Id: 1, Code: "ABCD1234", Language: "es", ExpiresAt: time.Now().Add(time.Hour)}
		db.On("FindJoinableRoom", "es").Return(want, nil).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		room, err := svc.Search("es")
		assert.NoError(t, err)
		assert.Equal(t, want.Code, room.Code)
	})

	t.Run("room about to expire", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("FindJoinableRoom", "es").Return(
			database.Room{Id: 1, ExpiresAt: time.Now().Add(30 * time.Second)}, nil,
		).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		_, err := svc.Search("es")
		assert.ErrorIs(t, err, ErrAboutToExpire)
	})

	t.Run("no room found", func(t *testing.T) {
		db := &database.MockOnlinexRepository{}
		defer db.AssertExpectations(t)

		db.On("FindJoinableRoom", "fr").Return(database.Room{}, database.ErrRoomNotFound).Once()

		svc := NewService(testutil.TestLogger(t), db, 24*time.Hour)
		_, err := svc.Search("fr")
		assert.ErrorIs(t, err, database.ErrRoomNotFound)
	})
}
