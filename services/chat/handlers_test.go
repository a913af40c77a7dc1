package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/relay"
	"github.com/zavolah/marketplace/pkg/testutil"
)

type countingRecorder map[string]int

func (c countingRecorder) RecordSagaCompensation(name string) { c[name]++ }

type testEnv struct {
	router   *mux.Router
	fake     *testutil.FakeSupabase
	registry *relay.Registry
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	fake := testutil.NewFakeSupabase(t)
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	repo := NewSupabaseRepository(fake.Client(t), opts...)
	registry := relay.NewRegistry(repo, relay.WithLogger(logging.Discard()))
	svc := NewService(repo, registry, logging.Discard())
	server := relay.NewServer(registry, svc, relay.SessionConfig{}, logging.Discard())

	r := mux.NewRouter()
	NewHandler(svc, server, logging.Discard()).RegisterRoutes(r.PathPrefix("/api").Subrouter())
	t.Cleanup(registry.CloseAll)
	return &testEnv{router: r, fake: fake, registry: registry}
}

func seedRoom(fake *testutil.FakeSupabase) {
	fake.Seed("chat_rooms", testutil.Row{"id": "room1", "name": "Design help", "type": "group", "created_by": "u1"})
	fake.Seed("chat_participants",
		testutil.Row{"id": "cp1", "room_id": "room1", "user_id": "u1", "role": "admin"},
		testutil.Row{"id": "cp2", "room_id": "room1", "user_id": "u2", "role": "member"},
	)
}

func dial(t *testing.T, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws/" + userID
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWebSocket_RelaysPersistedMessageToRoomMembers(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(env.fake)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	u1, u2, u3 := dial(t, ts, "u1"), dial(t, ts, "u2"), dial(t, ts, "u3")
	require.Eventually(t, func() bool { return env.registry.Count() == 3 }, time.Second, 10*time.Millisecond)

	require.NoError(t, u1.WriteJSON(relay.Frame{RoomID: "room1", Content: "hi"}))

	_ = u2.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Message
	require.NoError(t, u2.ReadJSON(&got))
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, "u1", got.SenderID)
	assert.Equal(t, DefaultMessageType, got.MessageType)
	assert.False(t, got.IsRead)
	assert.NotEmpty(t, got.ID)

	_ = u3.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := u3.ReadMessage()
	assert.Error(t, err, "non-member receives nothing")

	_ = u1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = u1.ReadMessage()
	assert.Error(t, err, "sender is excluded")

	rows := env.fake.Rows("messages")
	require.Len(t, rows, 1)
	assert.Equal(t, got.ID, rows[0]["id"])
	assert.Equal(t, []interface{}{}, rows[0]["attachments"])
}

func TestWebSocket_RejectsOtherUsersSession(t *testing.T) {
	env := newTestEnv(t)
	asU1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.router.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), "u1")))
	})

	rec := httptest.NewRecorder()
	asU1.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/ws/u2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, env.registry.Count())
}

func TestSendMessage_PersistsAndFansOut(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(env.fake)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	u2 := dial(t, ts, "u2")
	require.Eventually(t, func() bool { return env.registry.Connected("u2") }, time.Second, 10*time.Millisecond)

	rec := testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/messages", map[string]interface{}{
		"room_id": "room1", "sender_id": "u1", "message_type": "image", "content": "see attached", "attachments": []string{"https://cdn/x.png"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := testutil.DecodeJSON[Message](t, rec)
	assert.Equal(t, "image", sent.MessageType)

	_ = u2.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := u2.ReadMessage()
	require.NoError(t, err)
	var pushed Message
	require.NoError(t, json.Unmarshal(raw, &pushed))
	assert.Equal(t, sent.ID, pushed.ID)
	assert.Equal(t, []interface{}{"https://cdn/x.png"}, pushed.Attachments)

	rec = testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/messages", map[string]interface{}{"room_id": "room1", "sender_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRooms_CreateListDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/rooms", map[string]interface{}{
		"name": "Order 42", "type": "support", "created_by": "u1", "participants": []string{"u2", "u1", "u3"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	room := testutil.DecodeJSON[Room](t, rec)

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/rooms/"+room.ID+"/participants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	participants := testutil.DecodeJSON[[]Participant](t, rec)
	require.Len(t, participants, 3)
	roles := map[string]string{}
	for _, p := range participants {
		roles[p.UserID] = p.Role
	}
	assert.Equal(t, map[string]string{"u1": RoleAdmin, "u2": RoleMember, "u3": RoleMember}, roles)

	env.fake.Seed("chat_rooms", testutil.Row{"id": "other", "name": "x", "type": "support", "created_by": "u9"})

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/rooms?user_id=u3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rooms := testutil.DecodeJSON[[]Room](t, rec)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/rooms?user_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, testutil.DecodeJSON[[]Room](t, rec))

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/rooms?type=support", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, testutil.DecodeJSON[[]Room](t, rec), 2)

	env.fake.Seed("messages", testutil.Row{"id": "m1", "room_id": room.ID, "sender_id": "u1", "content": "hello", "is_read": false})

	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/rooms/"+room.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.fake.Find("chat_rooms", room.ID))
	assert.Empty(t, env.fake.Rows("chat_participants"))
	assert.Empty(t, env.fake.Rows("messages"))

	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/rooms/"+room.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRoom_CompensatesWhenParticipantsFail(t *testing.T) {
	recorder := countingRecorder{}
	env := newTestEnv(t, WithSagaRecorder(recorder))
	env.fake.FailNext(http.MethodPost, "chat_participants", http.StatusInternalServerError)

	rec := testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/rooms", map[string]interface{}{
		"name": "Order 42", "type": "support", "created_by": "u1", "participants": []string{"u2"},
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.fake.Rows("chat_rooms"))
	assert.Equal(t, 1, recorder["create_room"])
}

func TestMessages_ReadUpdateDelete(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(env.fake)
	env.fake.Seed("messages",
		testutil.Row{"id": "m1", "room_id": "room1", "sender_id": "u1", "content": "Is the logo ready?", "is_read": false},
		testutil.Row{"id": "m2", "room_id": "room1", "sender_id": "u2", "content": "Almost", "is_read": false},
		testutil.Row{"id": "m3", "room_id": "room1", "sender_id": "u1", "content": "Great, LOGO looks good", "is_read": false},
	)

	rec := testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/rooms/room1/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := testutil.DecodeJSON[[]Message](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].ID)

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/user/u2/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"unread_count": 2}, testutil.DecodeJSON[map[string]int](t, rec))

	rec = testutil.DoJSON(t, env.router, http.MethodPut, "/api/chat/messages/m1/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, env.fake.Find("messages", "m1")["is_read"])

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/user/u2/unread-count", nil)
	assert.Equal(t, map[string]int{"unread_count": 1}, testutil.DecodeJSON[map[string]int](t, rec))

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/user/stranger/unread-count", nil)
	assert.Equal(t, map[string]int{"unread_count": 0}, testutil.DecodeJSON[map[string]int](t, rec))

	rec = testutil.DoJSON(t, env.router, http.MethodPut, "/api/chat/messages/m2?content=Done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/messages/m2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Done", testutil.DecodeJSON[Message](t, rec).Content)

	rec = testutil.DoJSON(t, env.router, http.MethodPut, "/api/chat/messages/m2", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/search?query=logo&user_id=u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := testutil.DecodeJSON[[]Message](t, rec)
	require.Len(t, found, 2)
	assert.Equal(t, "m3", found[0].ID)

	rec = testutil.DoJSON(t, env.router, http.MethodGet, "/api/chat/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/messages/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/messages/m1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testutil.DoJSON(t, env.router, http.MethodPut, "/api/chat/messages/m1/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParticipants_AddRemove(t *testing.T) {
	env := newTestEnv(t)
	seedRoom(env.fake)

	rec := testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/rooms/room1/participants?user_id=u4", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	members, err := NewSupabaseRepository(env.fake.Client(t)).RoomMembers(context.Background(), "room1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u4"}, members)

	rec = testutil.DoJSON(t, env.router, http.MethodPost, "/api/chat/rooms/room1/participants?user_id=u5&role=owner", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/rooms/room1/participants/u2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, env.fake.Find("chat_participants", "cp2"))

	rec = testutil.DoJSON(t, env.router, http.MethodDelete, "/api/chat/rooms/room1/participants/u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
