package echoapi_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/huddle/core/chat"
	"github.com/trezcool/huddle/core/user"
	"github.com/trezcool/huddle/services/realtime"
)

func Test_chatApi_rooms(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	player := app.createUser(t, "pete", []string{user.RolePlayer}, "team-1")
	rival := app.createUser(t, "rick", []string{user.RolePlayer}, "team-2")
	admin := app.createUser(t, "adam", []string{user.RoleAdmin}, "")
	coachToken, playerToken, rivalToken := app.token(t, coach), app.token(t, player), app.token(t, rival)

	app.run(t, []httpTest{
		{name: "staff required", method: http.MethodPost, path: "/api/chat/rooms", token: playerToken,
			body: []byte(`{"name": "Locker room"}`), wantCode: http.StatusForbidden},
		{name: "name required", method: http.MethodPost, path: "/api/chat/rooms", token: coachToken,
			body: []byte(`{"name": " "}`), wantCode: http.StatusBadRequest},
	})

	var room, lobby chat.Room
	app.call(t, http.MethodPost, "/api/chat/rooms", coachToken, chat.NewRoom{Name: "Locker room"}, http.StatusCreated, &room)
	assert.Equal(t, "team-1", room.TeamID)
	app.call(t, http.MethodPost, "/api/chat/rooms", app.token(t, admin), chat.NewRoom{Name: "Lobby"}, http.StatusCreated, &lobby)
	assert.Empty(t, lobby.TeamID)

	var rooms []chat.Room
	app.call(t, http.MethodGet, "/api/chat/rooms", playerToken, nil, http.StatusOK, &rooms)
	require.Len(t, rooms, 2)
	assert.Equal(t, []string{"Lobby", "Locker room"}, []string{rooms[0].Name, rooms[1].Name})
	app.call(t, http.MethodGet, "/api/chat/rooms?team=team-1", rivalToken, nil, http.StatusOK, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, lobby.ID, rooms[0].ID)

	messagesPath := "/api/chat/rooms/" + room.ID + "/messages"
	app.run(t, []httpTest{
		{name: "other team cannot read", path: "/api/chat/rooms/" + room.ID, token: rivalToken, wantCode: http.StatusNotFound},
		{name: "other team cannot post", method: http.MethodPost, path: messagesPath, token: rivalToken,
			body: []byte(`{"body": "hi"}`), wantCode: http.StatusNotFound},
		{name: "blank message", method: http.MethodPost, path: messagesPath, token: playerToken,
			body: []byte(`{"body": "   "}`), wantCode: http.StatusBadRequest},
		{name: "message too long", method: http.MethodPost, path: messagesPath, token: playerToken,
			body: marshalObj(t, chat.NewMessage{Body: strings.Repeat("a", 4001)}), wantCode: http.StatusBadRequest},
		{name: "invalid cursor", path: messagesPath + "?before=yesterday", token: playerToken, wantCode: http.StatusBadRequest},
		{name: "player cannot delete", method: http.MethodDelete, path: "/api/chat/rooms/" + room.ID, token: playerToken,
			wantCode: http.StatusForbidden},
	})

	var posted []chat.Message
	for _, body := range []string{"first", "second", "third"} {
		var m chat.Message
		app.call(t, http.MethodPost, messagesPath, playerToken, chat.NewMessage{Body: " " + body + " "}, http.StatusCreated, &m)
		assert.Equal(t, body, m.Body)
		assert.Equal(t, player.ID, m.UserID)
		posted = append(posted, m)
		time.Sleep(2 * time.Millisecond) // distinct timestamps
	}

	var history []chat.Message
	app.call(t, http.MethodGet, messagesPath+"?limit=2", coachToken, nil, http.StatusOK, &history)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"third", "second"}, []string{history[0].Body, history[1].Body})

	before := url.QueryEscape(history[1].CreatedAt.Format(time.RFC3339Nano))
	app.call(t, http.MethodGet, messagesPath+"?before="+before, coachToken, nil, http.StatusOK, &history)
	require.Len(t, history, 1)
	assert.Equal(t, posted[0].ID, history[0].ID)

	app.call(t, http.MethodDelete, "/api/chat/rooms/"+room.ID, coachToken, nil, http.StatusNoContent, nil)
	app.call(t, http.MethodGet, messagesPath, coachToken, nil, http.StatusNotFound, nil)
}

func Test_chatApi_live(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	player := app.createUser(t, "pete", []string{user.RolePlayer}, "team-1")
	rival := app.createUser(t, "rick", []string{user.RolePlayer}, "team-2")
	coachToken, playerToken := app.token(t, coach), app.token(t, player)

	var room chat.Room
	app.call(t, http.MethodPost, "/api/chat/rooms", coachToken, chat.NewRoom{Name: "Locker room"}, http.StatusCreated, &room)

	srv := httptest.NewServer(app.srv)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/rooms/" + room.ID + "/ws"

	t.Run("rejected", func(t *testing.T) {
		tests := []struct {
			name     string
			url      string
			wantCode int
		}{
			{"missing token", wsURL, http.StatusUnauthorized},
			{"bad token", wsURL + "?token=garbage", http.StatusUnauthorized},
			{"other team", wsURL + "?token=" + app.token(t, rival), http.StatusNotFound},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				conn, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
				if conn != nil {
					_ = conn.Close()
				}
				require.Error(t, err)
				require.NotNil(t, resp)
				assert.Equal(t, tc.wantCode, resp.StatusCode)
			})
		}
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+playerToken, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return app.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	readEvent := func(t *testing.T) realtime.Event {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var evt realtime.Event
		require.NoError(t, conn.ReadJSON(&evt))
		return evt
	}

	t.Run("messages posted over http are pushed", func(t *testing.T) {
		var m chat.Message
		app.call(t, http.MethodPost, "/api/chat/rooms/"+room.ID+"/messages", coachToken, chat.NewMessage{Body: "Practice moved to 7"}, http.StatusCreated, &m)
		evt := readEvent(t)
		assert.Equal(t, realtime.EventMessage, evt.Type)
		require.NotNil(t, evt.Message)
		assert.Equal(t, m.ID, evt.Message.ID)
		assert.Equal(t, coach.ID, evt.Message.UserID)
	})

	t.Run("blank frames are rejected", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"body": "  "}))
		evt := readEvent(t)
		assert.Equal(t, realtime.EventError, evt.Type)
		assert.Equal(t, "body: this field cannot be blank", evt.Error)
	})

	t.Run("frames are saved then broadcast", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"body": "On my way"}))
		evt := readEvent(t)
		assert.Equal(t, realtime.EventMessage, evt.Type)
		require.NotNil(t, evt.Message)
		assert.Equal(t, "On my way", evt.Message.Body)
		assert.Equal(t, player.ID, evt.Message.UserID)

		var history []chat.Message
		app.call(t, http.MethodGet, "/api/chat/rooms/"+room.ID+"/messages", coachToken, nil, http.StatusOK, &history)
		require.Len(t, history, 2)
		assert.Equal(t, evt.Message.ID, history[0].ID)
	})
}
