package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/rooms"
	"github.com/onlinex/onlinex/internal/types"
	"github.com/teris-io/shortid"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	IsPublic bool   `json:"is_public"`
	Language string `json:"language"`
}

type CreateConversationRequest struct {
	AgentName string `json:"agent_name"`
}

type JoinRoomResponse struct {
	Room   types.Room       `json:"room"`
	Member types.RoomMember `json:"member"`
}

func (s *OnlinexApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func userResponse(account database.Account) types.User {
	kind := types.PrincipalRegistered
	if account.IsTemporary {
		kind = types.PrincipalTemporary
	}

	return types.User{
		Id:           account.Id,
		Username:     account.Username,
		EmailAddress: account.EmailAddress,
		Kind:         kind,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.UpdatedAt,
	}
}

func roomResponse(room database.Room) types.Room {
	return types.Room{
		Id:        room.Id,
		Code:      room.Code,
		Name:      room.Name,
		IsPublic:  room.IsPublic,
		MaxUsers:  room.MaxUsers,
		Language:  room.Language,
		IsActive:  room.IsActive,
		CreatedAt: room.CreatedAt,
		ExpiresAt: room.ExpiresAt,
	}
}

func memberResponse(member database.RoomMember) types.RoomMember {
	return types.RoomMember{
		Id:       member.Id,
		RoomId:   member.RoomId,
		UserId:   member.AccountId,
		IsHost:   member.IsHost,
		IsActive: member.IsActive,
	}
}

func (s *OnlinexApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newAccount, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userResponse(newAccount))
}

func (s *OnlinexApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError("")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(account.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	expiresAt := time.Now().Add(defaultJwtExpiration)
	token, err := s.createJwt(Principal{AccountId: account.Id, Kind: types.PrincipalRegistered}, expiresAt)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, expiresAt))

	s.writeJson(w, http.StatusOK, userResponse(account))
}

// tempAccess issues a short-lived anonymous principal so a visitor can join a
// room without registering. The token expiry matches the account's expiry, so
// the credential dies with the account.
func (s *OnlinexApp) tempAccess(w http.ResponseWriter, r *http.Request) {
	sid, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	expiresAt := time.Now().Add(defaultJwtExpiration)
	account, err := s.db.CreateTempAccount("guest-"+sid, expiresAt)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwt(Principal{AccountId: account.Id, Kind: types.PrincipalTemporary}, expiresAt)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, expiresAt))

	s.writeJson(w, http.StatusCreated, userResponse(account))
}

func (s *OnlinexApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Unix(0, 0)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *OnlinexApp) createRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewBadRequestError("Room name is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.CreateAndJoin(principal.AccountId, rooms.RoomSpec{
		Name:     req.Name,
		Capacity: req.Capacity,
		IsPublic: req.IsPublic,
		Language: req.Language,
	})
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, roomResponse(room))
}

func (s *OnlinexApp) joinRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewBadRequestError("Room code is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, member, err := s.rooms.Join(code, principal.AccountId)
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, JoinRoomResponse{
		Room:   roomResponse(room),
		Member: memberResponse(member),
	})
}

func (s *OnlinexApp) searchRoom(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if language == "" {
		errResp := NewBadRequestError("Language is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.rooms.Search(language)
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomResponse(room))
}

func (s *OnlinexApp) leaveRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errResp := NewBadRequestError("Room code is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, _, err := s.rooms.Leave(code, principal.AccountId)
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, roomResponse(room))
}

// createConversation is idempotent per (account, agent): repeated calls hand
// back the same conversation id.
func (s *OnlinexApp) createConversation(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.AgentName == "" {
		errResp := NewBadRequestError("Agent name is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.GetOrCreateConversation(principal.AccountId, req.AgentName)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Conversation{
		ExternalId: conv.ExternalId,
		AgentName:  conv.AgentName,
		CreatedAt:  conv.CreatedAt,
	})
}

func (s *OnlinexApp) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
}

// serveWsRoom attaches a websocket connection to a room chat channel. A
// caller who has not joined yet is joined here, subject to the same state
// machine as the join endpoint; an existing active member just connects.
func (s *OnlinexApp) serveWsRoom(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	account, err := s.db.GetAccountById(principal.AccountId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError("")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	code := r.PathValue("code")
	room, err := s.db.GetRoomByCode(code)
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// An active member reconnects without re-running the join state machine;
	// the capacity count already includes their own slot.
	_, err = s.db.GetActiveMember(room.Id, principal.AccountId)
	if errors.Is(err, database.ErrNotAMember) {
		room, _, err = s.rooms.Join(code, principal.AccountId)
	}
	if err != nil {
		errResp := roomError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeRoom(conn, room, account.Username)
}

func (s *OnlinexApp) serveWsAgent(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.db.GetConversationByExternalId(r.PathValue("conversation_id"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError("Conversation not found")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if conv.AccountId != principal.AccountId {
		errResp := NewForbiddenError("")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.ServeAgent(conn, conv)
}
