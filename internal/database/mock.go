package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockOnlinexRepository struct {
	mock.Mock
}

func (m *MockOnlinexRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockOnlinexRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	args := m.Called(params)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockOnlinexRepository) CreateTempAccount(username string, expiresAt time.Time) (Account, error) {
	args := m.Called(username, expiresAt)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockOnlinexRepository) GetAccountById(accountId int) (Account, error) {
	args := m.Called(accountId)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockOnlinexRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockOnlinexRepository) CreateRoomWithHost(params CreateRoomParams, hostId int) (Room, error) {
	args := m.Called(params, hostId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockOnlinexRepository) GetRoomByCode(code string) (Room, error) {
	args := m.Called(code)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockOnlinexRepository) CountActiveMembers(roomId int) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockOnlinexRepository) GetActiveMember(roomId, accountId int) (RoomMember, error) {
	args := m.Called(roomId, accountId)
	return args.Get(0).(RoomMember), args.Error(1)
}
func (m *MockOnlinexRepository) JoinRoom(code string, accountId int) (Room, RoomMember, error) {
	args := m.Called(code, accountId)
	return args.Get(0).(Room), args.Get(1).(RoomMember), args.Error(2)
}
func (m *MockOnlinexRepository) LeaveRoom(code string, accountId int) (Room, LeaveResult, error) {
	args := m.Called(code, accountId)
	return args.Get(0).(Room), args.Get(1).(LeaveResult), args.Error(2)
}
func (m *MockOnlinexRepository) FindJoinableRoom(language string) (Room, error) {
	args := m.Called(language)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockOnlinexRepository) CreateRoomMessage(msg RoomMessage) (RoomMessage, error) {
	args := m.Called(msg)
	return args.Get(0).(RoomMessage), args.Error(1)
}
func (m *MockOnlinexRepository) GetRoomMessages(roomId, limit int) ([]RoomMessage, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]RoomMessage), args.Error(1)
}
func (m *MockOnlinexRepository) GetOrCreateConversation(accountId int, agentName string) (Conversation, error) {
	args := m.Called(accountId, agentName)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockOnlinexRepository) GetConversationByExternalId(externalId string) (Conversation, error) {
	args := m.Called(externalId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockOnlinexRepository) CreateMemorySummary(conversationId int, summary string) (MemorySummary, error) {
	args := m.Called(conversationId, summary)
	return args.Get(0).(MemorySummary), args.Error(1)
}
func (m *MockOnlinexRepository) GetMemorySummaries(conversationId int) ([]MemorySummary, error) {
	args := m.Called(conversationId)
	return args.Get(0).([]MemorySummary), args.Error(1)
}
func (m *MockOnlinexRepository) GetExpiredRooms(now time.Time) ([]Room, error) {
	args := m.Called(now)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockOnlinexRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
