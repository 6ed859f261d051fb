package types

import (
	"time"
)

// PrincipalKind distinguishes registered accounts from temporary ones
// issued for anonymous room access.
type PrincipalKind string

const (
	PrincipalRegistered PrincipalKind = "registered"
	PrincipalTemporary  PrincipalKind = "temporary"
)

type User struct {
	Id           int           `json:"id"`
	Username     string        `json:"username"`
	EmailAddress string        `json:"email_address,omitempty"`
	Password     string        `json:"-"`
	Kind         PrincipalKind `json:"kind,omitempty"`
	CreatedAt    time.Time     `json:"created_at,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

type Room struct {
	Id        int       `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	MaxUsers  int       `json:"max_users"`
	Language  string    `json:"language"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

type RoomMember struct {
	Id       int  `json:"id"`
	RoomId   int  `json:"room_id"`
	UserId   int  `json:"user_id"`
	IsHost   bool `json:"is_host"`
	IsActive bool `json:"is_active"`
}

type Conversation struct {
	Id         int       `json:"-"`
	ExternalId string    `json:"conversation_id"`
	UserId     int       `json:"-"`
	AgentName  string    `json:"agent_name"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
