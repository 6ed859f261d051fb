package database

import (
	"database/sql"
	"time"
)

type Account struct {
	Id            int
	Username      string
	EmailAddress  string
	PasswordHash  string
	IsTemporary   bool
	TempExpiresAt sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Room struct {
	Id        int
	Code      string
	Name      string
	IsPublic  bool
	MaxUsers  int
	Language  string
	IsActive  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

type RoomMember struct {
	Id        int
	RoomId    int
	AccountId int
	IsHost    bool
	IsActive  bool
	CreatedAt time.Time
}

type RoomMessage struct {
	Id        int
	RoomId    int
	Sender    string
	Content   string
	CreatedAt time.Time
}

type Conversation struct {
	Id         int
	ExternalId string
	AccountId  int
	AgentName  string
	CreatedAt  time.Time
}

type MemorySummary struct {
	Id             int
	ConversationId int
	Summary        string
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateRoomParams struct {
	Code     string
	Name     string
	IsPublic bool
	MaxUsers int
	Language string
	Lifetime time.Duration
}

// LeaveResult reports what the leave transaction did beyond flipping the
// member row: which remaining member, if any, was promoted to host, and
// whether the room was deactivated because nobody was left.
type LeaveResult struct {
	WasHost     bool
	NewHostId   int
	Deactivated bool
}
