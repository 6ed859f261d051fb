package database

import "time"

type OnlinexRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (Account, error)
	CreateTempAccount(username string, expiresAt time.Time) (Account, error)
	GetAccountById(accountId int) (Account, error)
	GetAccountByEmail(email string) (Account, error)

	CreateRoomWithHost(params CreateRoomParams, hostId int) (Room, error)
	GetRoomByCode(code string) (Room, error)
	CountActiveMembers(roomId int) (int, error)
	GetActiveMember(roomId, accountId int) (RoomMember, error)
	JoinRoom(code string, accountId int) (Room, RoomMember, error)
	LeaveRoom(code string, accountId int) (Room, LeaveResult, error)
	FindJoinableRoom(language string) (Room, error)

	CreateRoomMessage(msg RoomMessage) (RoomMessage, error)
	GetRoomMessages(roomId, limit int) ([]RoomMessage, error)

	GetOrCreateConversation(accountId int, agentName string) (Conversation, error)
	GetConversationByExternalId(externalId string) (Conversation, error)
	CreateMemorySummary(conversationId int, summary string) (MemorySummary, error)
	GetMemorySummaries(conversationId int) ([]MemorySummary, error)

	GetExpiredRooms(now time.Time) ([]Room, error)
	DeleteRoom(roomId int) error
}
