package rooms

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/onlinex/onlinex/internal/database"
)

const (
	codeLength  = 8
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// expiryGrace is the minimum remaining lifetime a room must have for
	// search to hand it out. A room about to be swept is not worth joining.
	expiryGrace = time.Minute
)

// ErrAboutToExpire is returned by Search for rooms inside the expiry grace
// window; the API maps it to 410 Gone.
var ErrAboutToExpire = errors.New("room about to expire")

type RoomSpec struct {
	Name     string
	Capacity int
	IsPublic bool
	Language string
}

// Service implements the join/leave/host-transfer lifecycle on top of the
// room registry. The registry serializes per-room mutations; the service
// owns code allocation, defaults, and the search policy.
type Service struct {
	log      *log.Logger
	db       database.OnlinexRepository
	lifetime time.Duration
}

func NewService(logger *log.Logger, db database.OnlinexRepository, lifetime time.Duration) *Service {
	return &Service{
		log:      logger,
		db:       db,
		lifetime: lifetime,
	}
}

// GenerateCode returns a random 8-character uppercase alphanumeric room code.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}

	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}

	return string(buf), nil
}

// IsJoinable reports whether the room accepts a new member right now.
func IsJoinable(room database.Room, activeMembers int, now time.Time) bool {
	return room.IsActive && now.Before(room.ExpiresAt) && activeMembers < room.MaxUsers
}

// CreateAndJoin allocates a fresh unique code, creates the room, and inserts
// the creator as host in one registry transaction. Code collisions are
// retried with a new code until the insert lands.
func (s *Service) CreateAndJoin(userId int, spec RoomSpec) (database.Room, error) {
	if spec.Capacity <= 0 {
		spec.Capacity = 2
	}
	if spec.Language == "" {
		spec.Language = "en"
	}

	for {
		code, err := GenerateCode()
		if err != nil {
			return database.Room{}, err
		}

		room, err := s.db.CreateRoomWithHost(database.CreateRoomParams{
			Code:     code,
			Name:     spec.Name,
			IsPublic: spec.IsPublic,
			MaxUsers: spec.Capacity,
			Language: spec.Language,
			Lifetime: s.lifetime,
		}, userId)
		if errors.Is(err, database.ErrDuplicateCode) {
			s.log.Printf("room code %q already taken, retrying", code)
			continue
		}
		if err != nil {
			return database.Room{}, err
		}

		return room, nil
	}
}

func (s *Service) Join(code string, userId int) (database.Room, database.RoomMember, error) {
	return s.db.JoinRoom(code, userId)
}

func (s *Service) Leave(code string, userId int) (database.Room, database.LeaveResult, error) {
	room, result, err := s.db.LeaveRoom(code, userId)
	if err != nil {
		return database.Room{}, database.LeaveResult{}, err
	}

	if result.WasHost {
		if result.Deactivated {
			s.log.Printf("room %q deactivated, last member left", room.Code)
		} else {
			s.log.Printf("room %q host handed off to account %d", room.Code, result.NewHostId)
		}
	}

	return room, result, nil
}

// Search returns a public, joinable room for the language.
func (s *Service) Search(language string) (database.Room, error) {
	room, err := s.db.FindJoinableRoom(language)
	if err != nil {
		return database.Room{}, err
	}

	if time.Until(room.ExpiresAt) < expiryGrace {
		return database.Room{}, ErrAboutToExpire
	}

	return room, nil
}
