package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sitechat/sitechat/internal/chat"
	"github.com/sitechat/sitechat/internal/config"
	"github.com/sitechat/sitechat/internal/database"
	"github.com/sitechat/sitechat/internal/directory"
	"github.com/sitechat/sitechat/internal/notify"
	"github.com/sitechat/sitechat/internal/server"
	"github.com/sitechat/sitechat/internal/stats"
	"github.com/sitechat/sitechat/internal/testutil"
	"github.com/sitechat/sitechat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

func newTestApp(t *testing.T, db *database.MockChatRepository, dir *directory.MockDirectory) *App {
	sp := &stats.MockStatsUpdater{}
	sp.On("RegisterMetric", mock.Anything).Return()
	sp.On("Incr", mock.Anything).Return()

	logger := testutil.TestLogger(t)
	hub := server.NewHub(logger, nil)
	notifier := notify.NewNotifier(logger, db, hub, sp)
	svc := chat.NewService(logger, db, dir, notifier, sp, chat.DefaultFilePolicy())
	hub.SetChatService(svc)

	cfg, err := config.NewConfig("localhost:8000", "host=localhost", testSecret, nil, "", 0, nil)
	require.NoError(t, err)

	return NewApp(http.NewServeMux(), logger, hub, svc, dir, db, cfg)
}

func doRequest(t *testing.T, app *App, method, target string, body any, userId int) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	if userId > 0 {
		token, err := app.createJwtForSession(types.User{Id: userId}, time.Hour)
		require.NoError(t, err)
		req.AddCookie(createJwtCookie(token, time.Hour))
	}

	rr := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, req)
	return rr
}

func Test_createAccount(t *testing.T) {
	t.Run("creates the account", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("CreateAccount", mock.MatchedBy(func(p database.CreateAccountParams) bool {
			return p.Username == "alice" && p.EmailAddress == "alice@example.com" && p.PasswordHash != ""
		})).Return(database.User{Id: 1, Username: "alice", EmailAddress: "alice@example.com"}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/auth/register", RegisterRequest{
			Email:    "alice@example.com",
			Username: "alice",
			Password: "s3cret",
		}, 0)

		assert.Equal(t, http.StatusCreated, rr.Code)

		var u types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, "alice", u.Username)
	})

	t.Run("missing fields", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/auth/register", RegisterRequest{Email: "a@b.c"}, 0)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_login(t *testing.T) {
	pwdHash, err := hashPassword("s3cret")
	require.NoError(t, err)

	t.Run("valid credentials set a session cookie", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "alice@example.com").
			Return(database.User{Id: 1, Username: "alice", EmailAddress: "alice@example.com", PasswordHash: pwdHash}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/auth/login", LoginRequest{
			Email:    "alice@example.com",
			Password: "s3cret",
		}, 0)

		assert.Equal(t, http.StatusOK, rr.Code)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, tokenCookieKey, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("wrong password", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "alice@example.com").
			Return(database.User{Id: 1, PasswordHash: pwdHash}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/auth/login", LoginRequest{
			Email:    "alice@example.com",
			Password: "wrong",
		}, 0)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountByEmail", "nobody@example.com").Return(database.User{}, sql.ErrNoRows)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/auth/login", LoginRequest{
			Email:    "nobody@example.com",
			Password: "s3cret",
		}, 0)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_session(t *testing.T) {
	t.Run("requires a token", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/auth/session", nil, 0)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns the authenticated user", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/auth/session", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)

		var u types.User
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&u))
		assert.Equal(t, 1, u.Id)
	})
}

func Test_createPrivateRoom(t *testing.T) {
	privateRoom := database.Room{Id: 10, ExternalId: "ext-10", Kind: database.RoomKindPrivate}

	t.Run("by username", func(t *testing.T) {
		db := &database.MockChatRepository{}
		dir := &directory.MockDirectory{}
		dir.On("ResolveUsername", "bob").Return(2, nil)
		dir.On("IsUserActive", 2).Return(true, nil)
		db.On("FindPrivateRoomForPair", 1, 2).Return(database.Room{}, sql.ErrNoRows)
		db.On("CreatePrivateRoom", mock.AnythingOfType("string"), 1, 2).Return(privateRoom, nil)
		db.On("ListAllMemberships", 10).Return([]database.Membership{
			{AccountId: 1, Username: "alice", Active: true},
			{AccountId: 2, Username: "bob", Active: true},
		}, nil)
		db.On("GetMembership", 10, mock.Anything).Return(database.Membership{Active: true}, nil)
		db.On("CountUnreadMessages", 10, mock.Anything, mock.Anything).Return(0, nil)

		app := newTestApp(t, db, dir)
		rr := doRequest(t, app, http.MethodPost, "/api/rooms/private",
			CreatePrivateRoomRequest{Username: "bob"}, 1)

		assert.Equal(t, http.StatusOK, rr.Code)

		var room types.Room
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
		assert.Equal(t, "ext-10", room.ExternalId)
		assert.Equal(t, "bob", room.Name)
	})

	t.Run("self target", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPost, "/api/rooms/private",
			CreatePrivateRoomRequest{UserId: 1}, 1)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown username", func(t *testing.T) {
		dir := &directory.MockDirectory{}
		dir.On("ResolveUsername", "ghost").Return(0, sql.ErrNoRows)

		app := newTestApp(t, &database.MockChatRepository{}, dir)
		rr := doRequest(t, app, http.MethodPost, "/api/rooms/private",
			CreatePrivateRoomRequest{Username: "ghost"}, 1)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_createGroupRoom(t *testing.T) {
	db := &database.MockChatRepository{}
	dir := &directory.MockDirectory{}
	groupRoom := database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup,
		Name: sql.NullString{String: "Team", Valid: true}}
	dir.On("IsUserActive", 2).Return(true, nil)
	db.On("CreateGroupRoom", mock.AnythingOfType("string"), "Team", []int{1, 2}).Return(groupRoom, nil)
	db.On("ListActiveMemberships", 20).Return([]database.Membership{
		{AccountId: 1, Username: "alice", Active: true},
		{AccountId: 2, Username: "bob", Active: true},
	}, nil)
	db.On("GetMembership", 20, mock.Anything).Return(database.Membership{Active: true}, nil)
	db.On("CountUnreadMessages", 20, mock.Anything, mock.Anything).Return(0, nil)

	app := newTestApp(t, db, dir)
	rr := doRequest(t, app, http.MethodPost, "/api/rooms",
		CreateGroupRoomRequest{Name: "Team", ParticipantIds: []int{2}}, 1)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var room types.Room
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&room))
	assert.Equal(t, types.RoomGroup, room.Kind)
	assert.Len(t, room.Participants, 2)
}

func Test_renameRoom(t *testing.T) {
	t.Run("private room", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetRoomByExternalId", "ext-10").
			Return(database.Room{Id: 10, ExternalId: "ext-10", Kind: database.RoomKindPrivate}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodPut, "/api/rooms/ext-10/name",
			RenameRoomRequest{Name: "New name"}, 1)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("group room", func(t *testing.T) {
		db := &database.MockChatRepository{}
		dir := &directory.MockDirectory{}
		db.On("GetRoomByExternalId", "ext-20").
			Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
		db.On("GetMembership", 20, 1).Return(database.Membership{Active: true}, nil)
		db.On("RenameRoom", 20, "New name").Return(nil)
		dir.On("GetDisplayName", 1).Return("alice", nil)

		app := newTestApp(t, db, dir)
		rr := doRequest(t, app, http.MethodPut, "/api/rooms/ext-20/name",
			RenameRoomRequest{Name: "New name"}, 1)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		db.AssertCalled(t, "RenameRoom", 20, "New name")
	})
}

func Test_leaveRoom(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomByExternalId", "ext-20").
		Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
	db.On("GetMembership", 20, 1).Return(database.Membership{AccountId: 1, Username: "alice", Active: true}, nil)
	db.On("SetMembershipActive", 20, 1, false).Return(nil)
	db.On("ListActiveMemberships", 20).Return([]database.Membership{
		{AccountId: 2, Username: "bob", Active: true},
	}, nil)

	app := newTestApp(t, db, &directory.MockDirectory{})
	rr := doRequest(t, app, http.MethodPost, "/api/rooms/ext-20/leave", nil, 1)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	db.AssertCalled(t, "SetMembershipActive", 20, 1, false)
}

func Test_markRead(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetRoomByExternalId", "ext-20").
		Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
	db.On("GetMembership", 20, 1).Return(database.Membership{Active: true}, nil)
	db.On("UpdateLastReadAt", 20, 1, mock.AnythingOfType("time.Time")).Return(nil)

	app := newTestApp(t, db, &directory.MockDirectory{})
	rr := doRequest(t, app, http.MethodPost, "/api/rooms/ext-20/read", nil, 1)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	db.AssertExpectations(t)
}

func Test_getMessages(t *testing.T) {
	t.Run("returns a page", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetRoomByExternalId", "ext-20").
			Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
		db.On("GetMembership", 20, 1).Return(database.Membership{Active: true}, nil)
		db.On("GetMessages", 20, 0, 10).Return([]database.Message{
			{Id: 2, RoomId: 20, SenderId: 2, SenderName: "bob", Kind: "text", Content: "hi", CreatedAt: time.Now()},
		}, nil)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/messages?room_id=ext-20&limit=10", nil, 1)

		assert.Equal(t, http.StatusOK, rr.Code)

		var messages []types.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&messages))
		require.Len(t, messages, 1)
		assert.Equal(t, "hi", messages[0].Content)
	})

	t.Run("missing room id", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/messages", nil, 1)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		app := newTestApp(t, &database.MockChatRepository{}, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/messages?room_id=ext-20&limit=zero", nil, 1)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-participant", func(t *testing.T) {
		db := &database.MockChatRepository{}
		db.On("GetRoomByExternalId", "ext-20").
			Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
		db.On("GetMembership", 20, 1).Return(database.Membership{}, sql.ErrNoRows)

		app := newTestApp(t, db, &directory.MockDirectory{})
		rr := doRequest(t, app, http.MethodGet, "/api/messages?room_id=ext-20", nil, 1)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func Test_sendMessage(t *testing.T) {
	db := &database.MockChatRepository{}
	dir := &directory.MockDirectory{}
	db.On("GetRoomByExternalId", "ext-20").
		Return(database.Room{Id: 20, ExternalId: "ext-20", Kind: database.RoomKindGroup}, nil)
	db.On("GetMembership", 20, 1).Return(database.Membership{Active: true}, nil)
	db.On("CreateMessage", mock.Anything).
		Return(database.Message{Id: 7, RoomId: 20, SenderId: 1, Kind: "text", Content: "hello"}, nil)
	dir.On("GetDisplayName", 1).Return("alice", nil)
	db.On("ListActiveMemberships", 20).Return([]database.Membership{
		{AccountId: 1, Username: "alice", Active: true},
	}, nil)

	app := newTestApp(t, db, dir)
	rr := doRequest(t, app, http.MethodPost, "/api/rooms/ext-20/messages",
		chat.MessagePayload{Kind: types.MessageText, Content: "hello"}, 1)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var msg types.Message
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&msg))
	assert.Equal(t, 7, msg.Id)
	assert.Equal(t, "ext-20", msg.RoomId)
}
