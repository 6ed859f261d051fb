package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/onlinex/onlinex/internal/config"
	"github.com/onlinex/onlinex/internal/database"
	"github.com/onlinex/onlinex/internal/rooms"
	"github.com/onlinex/onlinex/internal/server"
	"github.com/onlinex/onlinex/internal/stats"
	"github.com/onlinex/onlinex/internal/testutil"
	"github.com/onlinex/onlinex/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, db database.OnlinexRepository) *OnlinexApp {
	t.Helper()
	cfg := &config.Config{
		ServerAddr:   "localhost:0",
		SigningKey:   []byte("test-signing-key"),
		RoomLifetime: config.DefaultRoomLifetime,
	}
	logger := testutil.TestLogger(t)
	roomSvc := rooms.NewService(logger, db, cfg.RoomLifetime)
	return NewOnlinexApp(http.NewServeMux(), logger, nil, roomSvc, db, cfg)
}

// findCookie returns the named cookie from the recorded response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func authedRequest(method, target string, body *bytes.Buffer, p Principal) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(WithPrincipal(req.Context(), p))
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

func TestHealthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{name: "successful health check", mockErr: nil},
		{name: "failed health check", mockErr: errors.New("db error")},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockOnlinexRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.healthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code)
			} else {
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK", rr.Body.String())
			}
		})
	}
}

func TestCreateAccount(t *testing.T) {
	expectedAccount := database.Account{
		Id:           1,
		Username:     "newuser",
		EmailAddress: "newuser@example.com",
		PasswordHash: "hashedpassword",
	}

	tcases := []struct {
		name         string
		body         any
		mockAccount  database.Account
		mockErr      error
		expectCreate bool
		expectedCode int
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Username: expectedAccount.Username,
				Email:    expectedAccount.EmailAddress,
				Password: "password",
			},
			mockAccount:  expectedAccount,
			expectCreate: true,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "fails with invalid json body",
			body:         "invalid json",
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fails with missing username",
			body:         RegisterRequest{Email: expectedAccount.EmailAddress, Password: "password"},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "fails with missing password",
			body:         RegisterRequest{Username: expectedAccount.Username, Email: expectedAccount.EmailAddress},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "fails with db error",
			body: RegisterRequest{
				Username: expectedAccount.Username,
				Email:    expectedAccount.EmailAddress,
				Password: "password",
			},
			mockErr:      errors.New("db error"),
			expectCreate: true,
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockOnlinexRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.expectCreate {
				mockRepo.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
					return p.Username == expectedAccount.Username &&
						p.EmailAddress == expectedAccount.EmailAddress &&
						p.PasswordHash != "" && p.PasswordHash != "password"
				})).Return(tc.mockAccount, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.createAccount(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", jsonBody(t, tc.body)))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedCode == http.StatusCreated {
				var u types.User
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
				assert.Equal(t, expectedAccount.Username, u.Username)
				assert.Equal(t, types.PrincipalRegistered, u.Kind)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	passwordHash, err := hashPassword("password")
	require.NoError(t, err)
	account := database.Account{
		Id:           1,
		Username:     "user",
		EmailAddress: "user@example.com",
		PasswordHash: passwordHash,
	}

	t.Run("successful login sets token cookie", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", account.EmailAddress).Return(account, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: account.EmailAddress, Password: "password"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusOK, rr.Code)
		cookie := findCookie(rr, tokenCookieKey)
		require.NotNil(t, cookie, "expected token cookie to be set")

		principal, err := app.extractPrincipalFromToken(cookie.Value)
		require.NoError(t, err)
		assert.Equal(t, account.Id, principal.AccountId)
		assert.Equal(t, types.PrincipalRegistered, principal.Kind)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", account.EmailAddress).Return(account, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: account.EmailAddress, Password: "wrong"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Nil(t, findCookie(rr, tokenCookieKey))
	})

	t.Run("unknown email is not found", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", "nobody@example.com").Return(database.Account{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		body := jsonBody(t, LoginRequest{Email: "nobody@example.com", Password: "password"})
		app.login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", body))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestTempAccess(t *testing.T) {
	mockRepo := &database.MockOnlinexRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("CreateTempAccount", mock.MatchedBy(func(username string) bool {
		return len(username) > len("guest-")
	}), mock.AnythingOfType("time.Time")).
		Return(database.Account{Id: 5, Username: "guest-abc123", IsTemporary: true}, nil).Once()

	app := newTestApp(t, mockRepo)
	rr := httptest.NewRecorder()
	app.tempAccess(rr, httptest.NewRequest(http.MethodPost, "/api/auth/temp", nil))

	assert.Equal(t, http.StatusCreated, rr.Code)

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected token cookie to be set")
	principal, err := app.extractPrincipalFromToken(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, 5, principal.AccountId)
	assert.Equal(t, types.PrincipalTemporary, principal.Kind)

	var u types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
	assert.Equal(t, types.PrincipalTemporary, u.Kind)
}

func TestCreateRoom(t *testing.T) {
	principal := Principal{AccountId: 1, Kind: types.PrincipalRegistered}
	codePattern := regexp.MustCompile(`^[A-Z0-9]{8}$`)

	t.Run("creates room and returns its code", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CreateRoomWithHost", mock.MatchedBy(func(p database.CreateRoomParams) bool {
			return codePattern.MatchString(p.Code) && p.Name == "Spanish Practice" &&
				p.MaxUsers == 2 && p.Language == "es"
		}), 1).Return(database.Room{
			Id: 1, Code: "A1B2C3D4", Name: "Spanish Practice",
			MaxUsers: 2, Language: "es", IsActive: true,
			ExpiresAt: time.Now().Add(24 * time.Hour),
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		body := jsonBody(t, CreateRoomRequest{Name: "Spanish Practice", Capacity: 2, Language: "es"})
		app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", body, principal))

		assert.Equal(t, http.StatusCreated, rr.Code)
		var room types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Regexp(t, codePattern, room.Code)
		assert.Equal(t, "Spanish Practice", room.Name)
	})

	t.Run("rejects creator active in another room", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("CreateRoomWithHost", mock.Anything, 1).
			Return(database.Room{}, database.ErrAlreadyElsewhere).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		body := jsonBody(t, CreateRoomRequest{Name: "Spanish Practice"})
		app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", body, principal))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		app := newTestApp(t, &database.MockOnlinexRepository{})
		rr := httptest.NewRecorder()
		body := jsonBody(t, CreateRoomRequest{Language: "es"})
		app.createRoom(rr, authedRequest(http.MethodPost, "/api/rooms", body, principal))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestJoinRoom(t *testing.T) {
	principal := Principal{AccountId: 2, Kind: types.PrincipalRegistered}
	room := database.Room{Id: 1, Code: "A1B2C3D4", Name: "Spanish Practice", MaxUsers: 2, IsActive: true}

	tcases := []struct {
		name            string
		mockErr         error
		expectedCode    int
		expectedMessage string
	}{
		{
			name:         "successful join",
			expectedCode: http.StatusOK,
		},
		{
			name:            "room not found",
			mockErr:         database.ErrRoomNotFound,
			expectedCode:    http.StatusNotFound,
			expectedMessage: "Room not found",
		},
		{
			name:            "room full",
			mockErr:         database.ErrRoomFull,
			expectedCode:    http.StatusForbidden,
			expectedMessage: "Room is full",
		},
		{
			name:            "room closed or expired",
			mockErr:         database.ErrRoomClosed,
			expectedCode:    http.StatusForbidden,
			expectedMessage: "Room is closed or expired",
		},
		{
			name:            "already a member",
			mockErr:         database.ErrAlreadyMember,
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Already a member of this room",
		},
		{
			name:            "already active elsewhere",
			mockErr:         database.ErrAlreadyElsewhere,
			expectedCode:    http.StatusBadRequest,
			expectedMessage: "Already active in another room",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockOnlinexRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("JoinRoom", room.Code, principal.AccountId).
				Return(room, database.RoomMember{Id: 2, RoomId: 1, AccountId: 2, IsActive: true}, tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			rr := httptest.NewRecorder()
			app.joinRoom(rr, authedRequest(http.MethodPost, "/api/rooms/join?code="+room.Code, nil, principal))

			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedMessage != "" {
				var apiErr ApiError
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
				assert.Equal(t, tc.expectedMessage, apiErr.Message)
			}
			if tc.expectedCode == http.StatusOK {
				var joined JoinRoomResponse
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&joined))
				assert.Equal(t, room.Code, joined.Room.Code)
				assert.Equal(t, principal.AccountId, joined.Member.UserId)
				assert.True(t, joined.Member.IsActive, "expected the new membership to be active")
			}
		})
	}

	t.Run("missing code", func(t *testing.T) {
		app := newTestApp(t, &database.MockOnlinexRepository{})
		rr := httptest.NewRecorder()
		app.joinRoom(rr, authedRequest(http.MethodPost, "/api/rooms/join", nil, principal))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

// newTestWsApp builds an app with a live chat server behind a real listener,
// since websocket handshakes need one.
func newTestWsApp(t *testing.T, db database.OnlinexRepository) (*OnlinexApp, *httptest.Server) {
	t.Helper()
	logger := testutil.TestLogger(t)
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	hub := server.NewHub(logger, su)
	cs := server.NewChatServer(logger, db, hub, nil, su)

	cfg := &config.Config{
		ServerAddr:   "localhost:0",
		SigningKey:   []byte("test-signing-key"),
		RoomLifetime: config.DefaultRoomLifetime,
	}
	mux := http.NewServeMux()
	app := NewOnlinexApp(mux, logger, cs, rooms.NewService(logger, db, cfg.RoomLifetime), db, cfg)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return app, ts
}

func dialWsRoom(t *testing.T, app *OnlinexApp, ts *httptest.Server, code string, p Principal) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	token, err := app.createJwt(p, time.Now().Add(time.Hour))
	require.NoError(t, err)

	wsUrl := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/rooms/" + code
	header := http.Header{"Cookie": []string{tokenCookieKey + "=" + token}}
	return websocket.DefaultDialer.Dial(wsUrl, header)
}

func TestServeWsRoom(t *testing.T) {
	principal := Principal{AccountId: 2, Kind: types.PrincipalRegistered}
	account := database.Account{Id: 2, Username: "user"}
	room := database.Room{
		Id: 1, Code: "A1B2C3D4", MaxUsers: 2, IsActive: true,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	t.Run("active member of a full room reconnects", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", 2).Return(account, nil).Once()
		mockRepo.On("GetRoomByCode", room.Code).Return(room, nil).Once()
		mockRepo.On("GetActiveMember", room.Id, 2).Return(
			database.RoomMember{Id: 4, RoomId: room.Id, AccountId: 2, IsActive: true}, nil).Once()
		mockRepo.On("GetRoomMessages", room.Id, mock.Anything).Return([]database.RoomMessage{}, nil).Maybe()

		app, ts := newTestWsApp(t, mockRepo)
		conn, _, err := dialWsRoom(t, app, ts, room.Code, principal)
		require.NoError(t, err, "expected an existing member to connect even with the room at capacity")
		conn.Close()

		mockRepo.AssertNotCalled(t, "JoinRoom", mock.Anything, mock.Anything)
	})

	t.Run("non-member is refused when the room is full", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", 9).Return(database.Account{Id: 9, Username: "other"}, nil).Once()
		mockRepo.On("GetRoomByCode", room.Code).Return(room, nil).Once()
		mockRepo.On("GetActiveMember", room.Id, 9).Return(
			database.RoomMember{}, database.ErrNotAMember).Once()
		mockRepo.On("JoinRoom", room.Code, 9).Return(
			database.Room{}, database.RoomMember{}, database.ErrRoomFull).Once()

		app, ts := newTestWsApp(t, mockRepo)
		_, resp, err := dialWsRoom(t, app, ts, room.Code, Principal{AccountId: 9, Kind: types.PrincipalRegistered})
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("first connection joins the room", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", 2).Return(account, nil).Once()
		mockRepo.On("GetRoomByCode", room.Code).Return(room, nil).Once()
		mockRepo.On("GetActiveMember", room.Id, 2).Return(
			database.RoomMember{}, database.ErrNotAMember).Once()
		mockRepo.On("JoinRoom", room.Code, 2).Return(
			room, database.RoomMember{Id: 4, RoomId: room.Id, AccountId: 2, IsActive: true}, nil).Once()
		mockRepo.On("GetRoomMessages", room.Id, mock.Anything).Return([]database.RoomMessage{}, nil).Maybe()

		app, ts := newTestWsApp(t, mockRepo)
		conn, _, err := dialWsRoom(t, app, ts, room.Code, principal)
		require.NoError(t, err, "expected a first-time connector to be joined and upgraded")
		conn.Close()
	})
}

func TestSearchRoom(t *testing.T) {
	principal := Principal{AccountId: 2, Kind: types.PrincipalRegistered}

	t.Run("returns a joinable room", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("FindJoinableRoom", "es").Return(database.Room{
			Id: 1, Code: "A1B2C3D4", Language: "es", IsActive: true,
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.searchRoom(rr, authedRequest(http.MethodGet, "/api/rooms/search?language=es", nil, principal))

		assert.Equal(t, http.StatusOK, rr.Code)
		var room types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, "A1B2C3D4", room.Code)
	})

	t.Run("room about to expire is gone", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("FindJoinableRoom", "es").Return(database.Room{
			Id: 1, Code: "A1B2C3D4", Language: "es", IsActive: true,
			ExpiresAt: time.Now().Add(30 * time.Second),
		}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.searchRoom(rr, authedRequest(http.MethodGet, "/api/rooms/search?language=es", nil, principal))

		assert.Equal(t, http.StatusGone, rr.Code)
	})

	t.Run("no joinable room", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("FindJoinableRoom", "fr").Return(database.Room{}, database.ErrRoomNotFound).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.searchRoom(rr, authedRequest(http.MethodGet, "/api/rooms/search?language=fr", nil, principal))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestLeaveRoom(t *testing.T) {
	principal := Principal{AccountId: 1, Kind: types.PrincipalRegistered}

	t.Run("host leaves, remaining member promoted", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("LeaveRoom", "A1B2C3D4", 1).Return(
			database.Room{Id: 1, Code: "A1B2C3D4", IsActive: true},
			database.LeaveResult{WasHost: true, NewHostId: 2}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.leaveRoom(rr, authedRequest(http.MethodPost, "/api/rooms/leave?code=A1B2C3D4", nil, principal))

		assert.Equal(t, http.StatusOK, rr.Code)
		var room types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.True(t, room.IsActive, "expected room to stay active after handoff")
	})

	t.Run("last member leaves, room deactivated", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("LeaveRoom", "A1B2C3D4", 1).Return(
			database.Room{Id: 1, Code: "A1B2C3D4", IsActive: false},
			database.LeaveResult{WasHost: true, Deactivated: true}, nil).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.leaveRoom(rr, authedRequest(http.MethodPost, "/api/rooms/leave?code=A1B2C3D4", nil, principal))

		assert.Equal(t, http.StatusOK, rr.Code)
		var room types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.False(t, room.IsActive, "expected room deactivated after last member left")
	})

	t.Run("not a member", func(t *testing.T) {
		mockRepo := &database.MockOnlinexRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("LeaveRoom", "A1B2C3D4", 1).Return(
			database.Room{}, database.LeaveResult{}, database.ErrNotAMember).Once()

		app := newTestApp(t, mockRepo)
		rr := httptest.NewRecorder()
		app.leaveRoom(rr, authedRequest(http.MethodPost, "/api/rooms/leave?code=A1B2C3D4", nil, principal))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestCreateConversation(t *testing.T) {
	principal := Principal{AccountId: 1, Kind: types.PrincipalRegistered}

	mockRepo := &database.MockOnlinexRepository{}
	defer mockRepo.AssertExpectations(t)
	conv := database.Conversation{Id: 1, ExternalId: "3b21e1c2-9a1f-4e0a-8a52-0f6c5f0a7c11", AccountId: 1, AgentName: "dante"}
	mockRepo.On("GetOrCreateConversation", 1, "dante").Return(conv, nil).Twice()

	app := newTestApp(t, mockRepo)
	body := jsonBody(t, CreateConversationRequest{AgentName: "dante"})
	rr := httptest.NewRecorder()
	app.createConversation(rr, authedRequest(http.MethodPost, "/api/conversations", body, principal))
	assert.Equal(t, http.StatusOK, rr.Code)

	var first types.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&first))
	assert.Equal(t, conv.ExternalId, first.ExternalId)

	// second call hands back the same conversation
	rr = httptest.NewRecorder()
	body = jsonBody(t, CreateConversationRequest{AgentName: "dante"})
	app.createConversation(rr, authedRequest(http.MethodPost, "/api/conversations", body, principal))

	var second types.Conversation
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&second))
	assert.Equal(t, first.ExternalId, second.ExternalId)
}

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockOnlinexRepository{})

	next := func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		require.True(t, ok, "expected principal in context")
		assert.Equal(t, 1, principal.AccountId)
		w.WriteHeader(http.StatusOK)
	}

	t.Run("valid token passes", func(t *testing.T) {
		token, err := app.createJwt(Principal{AccountId: 1, Kind: types.PrincipalRegistered}, time.Now().Add(time.Hour))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms/search", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		rr := httptest.NewRecorder()
		app.authMiddleware(next)(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing cookie is unauthorized", func(t *testing.T) {
		rr := httptest.NewRecorder()
		app.authMiddleware(next)(rr, httptest.NewRequest(http.MethodGet, "/api/rooms/search", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired temporary token is unauthorized", func(t *testing.T) {
		token, err := app.createJwt(Principal{AccountId: 1, Kind: types.PrincipalTemporary}, time.Now().Add(-time.Minute))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/rooms/search", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
		rr := httptest.NewRecorder()
		app.authMiddleware(next)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
