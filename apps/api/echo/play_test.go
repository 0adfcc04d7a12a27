package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/user"
)

func frameIDs(frames []play.Frame) []string {
	ids := make([]string, len(frames))
	for i, f := range frames {
		ids[i] = f.ID
	}
	return ids
}

func assertNumbered(t *testing.T, frames []play.Frame) {
	t.Helper()
	for i, f := range frames {
		assert.Equal(t, i, f.FrameNumber, "frame %s", f.ID)
	}
}

var newPlayBody = json.RawMessage(`{
	"name": "Triangle Offense",
	"category": "OFFENSIVE",
	"tags": ["Motion", "motion", " post "],
	"frames": [
		{"positions": [{"playerId": "p1", "label": "1", "team": "offense", "x": 10, "y": 20}], "ball": {"x": 10, "y": 20}},
		{"duration": 2.5, "lines": [{"kind": "pass", "points": [{"x": 10, "y": 20}, {"x": 30, "y": 5}]}]},
		{"annotations": [{"kind": "text", "text": "go!", "x": 1, "y": 2}]}
	]
}`)

func Test_playApi_create(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	player := app.createUser(t, "pete", []string{user.RolePlayer}, "team-1")
	coachToken := app.token(t, coach)

	app.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/plays", body: newPlayBody, wantCode: http.StatusUnauthorized},
		{name: "staff required", method: http.MethodPost, path: "/api/plays", body: newPlayBody, token: app.token(t, player),
			wantCode: http.StatusForbidden},
		{name: "missing fields", method: http.MethodPost, path: "/api/plays", body: []byte(`{}`), token: coachToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"name": "this field is required", "category": "this field is required"}`)},
		{name: "invalid category", method: http.MethodPost, path: "/api/plays", token: coachToken,
			body: []byte(`{"name": "X", "category": "ZONE"}`), wantCode: http.StatusBadRequest},
		{name: "unknown playbook", method: http.MethodPost, path: "/api/plays", token: coachToken,
			body:     []byte(`{"name": "X", "category": "DEFENSIVE", "playbookId": "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6afff"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"playbookId": "playbook not found"}`)},
	})

	var created play.Play
	app.call(t, http.MethodPost, "/api/plays", coachToken, newPlayBody, http.StatusCreated, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "team-1", created.TeamID)
	assert.Equal(t, coach.ID, created.CreatedBy)
	assert.Equal(t, []string{"motion", "post"}, created.Tags)
	assert.EqualValues(t, 1, created.Version)
	require.Len(t, created.Frames, 3)
	assertNumbered(t, created.Frames)

	// fetching returns the exact same frame content
	var fetched play.Play
	app.call(t, http.MethodGet, "/api/plays/"+created.ID, coachToken, nil, http.StatusOK, &fetched)
	require.Len(t, fetched.Frames, 3)
	for i := range created.Frames {
		assert.Equal(t, created.Frames[i].Positions, fetched.Frames[i].Positions)
		assert.Equal(t, created.Frames[i].Lines, fetched.Frames[i].Lines)
		assert.Equal(t, created.Frames[i].Annotations, fetched.Frames[i].Annotations)
		assert.Equal(t, created.Frames[i].Ball, fetched.Frames[i].Ball)
		assert.Equal(t, created.Frames[i].Duration, fetched.Frames[i].Duration)
	}
	assert.Equal(t, 2.5, fetched.Frames[1].Duration)
	assert.Equal(t, play.DefaultFrameDuration, fetched.Frames[0].Duration)
}

func Test_playApi_access(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	player := app.createUser(t, "pete", []string{user.RolePlayer}, "team-1")
	rival := app.createUser(t, "rick", []string{user.RoleCoach}, "team-2")
	admin := app.createUser(t, "adam", []string{user.RoleAdmin}, "")
	coachToken, playerToken, rivalToken := app.token(t, coach), app.token(t, player), app.token(t, rival)

	var draft play.Play
	app.call(t, http.MethodPost, "/api/plays", coachToken, newPlayBody, http.StatusCreated, &draft)
	path := "/api/plays/" + draft.ID

	app.run(t, []httpTest{
		{name: "player cannot see a draft", path: path, token: playerToken, wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "play not found"})},
		{name: "player list hides drafts", path: "/api/plays", token: playerToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "other team cannot see", path: path, token: rivalToken, wantCode: http.StatusNotFound},
		{name: "other team cannot edit", method: http.MethodPut, path: path, token: rivalToken, body: []byte(`{"name": "Mine"}`),
			wantCode: http.StatusNotFound},
		{name: "admin sees everything", path: path, token: app.token(t, admin), wantCode: http.StatusOK},
		{name: "unknown play", path: "/api/plays/nope", token: coachToken, wantCode: http.StatusNotFound},
	})

	var published play.Play
	app.call(t, http.MethodPut, path, coachToken, map[string]interface{}{"isPublished": true, "version": draft.Version}, http.StatusOK, &published)
	assert.True(t, published.IsPublished)
	assert.Equal(t, draft.Version+1, published.Version)

	app.run(t, []httpTest{
		{name: "stale version", method: http.MethodPut, path: path, token: coachToken,
			body: marshalObj(t, map[string]interface{}{"name": "Stale", "version": draft.Version}), wantCode: http.StatusConflict},
		{name: "player sees published", path: path, token: playerToken, wantCode: http.StatusOK},
		{name: "player cannot edit", method: http.MethodPut, path: path, token: playerToken, body: []byte(`{"name": "Mine"}`),
			wantCode: http.StatusForbidden},
	})

	var plays []play.Play
	app.call(t, http.MethodGet, "/api/plays?category=OFFENSIVE&tag=MOTION", playerToken, nil, http.StatusOK, &plays)
	require.Len(t, plays, 1)
	assert.Equal(t, draft.ID, plays[0].ID)
	app.call(t, http.MethodGet, "/api/plays", rivalToken, nil, http.StatusOK, &plays)
	assert.Empty(t, plays)

	app.call(t, http.MethodDelete, path, coachToken, nil, http.StatusNoContent, nil)
	app.call(t, http.MethodGet, path, coachToken, nil, http.StatusNotFound, nil)
}

func Test_playApi_frames(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	token := app.token(t, coach)

	var p play.Play
	app.call(t, http.MethodPost, "/api/plays", token, newPlayBody, http.StatusCreated, &p)
	framesPath := "/api/plays/" + p.ID + "/frames"
	orig := frameIDs(p.Frames)

	var frame play.Frame
	app.call(t, http.MethodGet, framesPath+"/"+orig[1], token, nil, http.StatusOK, &frame)
	assert.Equal(t, 1, frame.FrameNumber)
	app.call(t, http.MethodGet, framesPath+"/nope", token, nil, http.StatusNotFound, nil)

	t.Run("delete renumbers", func(t *testing.T) {
		var frames []play.Frame
		app.call(t, http.MethodDelete, framesPath+"/"+orig[1], token, nil, http.StatusOK, &frames)
		assert.Equal(t, []string{orig[0], orig[2]}, frameIDs(frames))
		assertNumbered(t, frames)

		app.call(t, http.MethodDelete, framesPath+"/"+orig[1], token, nil, http.StatusNotFound, nil)
		app.call(t, http.MethodDelete, framesPath+"/"+orig[0]+"?version=1", token, nil, http.StatusConflict, nil)
		app.call(t, http.MethodDelete, framesPath+"/"+orig[0]+"?version=x", token, nil, http.StatusBadRequest, nil)
	})

	t.Run("insert", func(t *testing.T) {
		var inserted play.Frame
		app.call(t, http.MethodPost, framesPath, token, map[string]interface{}{"frameNumber": 0, "duration": 3}, http.StatusCreated, &inserted)
		assert.Equal(t, 0, inserted.FrameNumber)
		assert.Equal(t, 3.0, inserted.Duration)

		var frames []play.Frame
		app.call(t, http.MethodGet, framesPath, token, nil, http.StatusOK, &frames)
		assert.Equal(t, []string{inserted.ID, orig[0], orig[2]}, frameIDs(frames))
		assertNumbered(t, frames)

		var appended play.Frame
		app.call(t, http.MethodPost, framesPath, token, map[string]interface{}{}, http.StatusCreated, &appended)
		assert.Equal(t, 3, appended.FrameNumber)
	})

	t.Run("reorder", func(t *testing.T) {
		var frames []play.Frame
		app.call(t, http.MethodGet, framesPath, token, nil, http.StatusOK, &frames)
		ids := frameIDs(frames)

		order := []map[string]interface{}{
			{"id": ids[3], "frameNumber": 0},
			{"id": ids[2], "frameNumber": 1},
			{"id": ids[1], "frameNumber": 2},
			{"id": ids[0], "frameNumber": 3},
		}
		app.call(t, http.MethodPut, framesPath, token, map[string]interface{}{"frames": order}, http.StatusOK, &frames)
		assert.Equal(t, []string{ids[3], ids[2], ids[1], ids[0]}, frameIDs(frames))
		assertNumbered(t, frames)

		app.run(t, []httpTest{
			{name: "unknown frame", method: http.MethodPut, path: framesPath, token: token,
				body: marshalObj(t, map[string]interface{}{"frames": []map[string]interface{}{{"id": "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6afff", "frameNumber": 0}}}),
				wantCode: http.StatusNotFound},
			{name: "duplicate frame", method: http.MethodPut, path: framesPath, token: token,
				body: marshalObj(t, map[string]interface{}{"frames": []map[string]interface{}{{"id": ids[0], "frameNumber": 0}, {"id": ids[0], "frameNumber": 1}}}),
				wantCode: http.StatusBadRequest},
			{name: "missing frames", method: http.MethodPut, path: framesPath, token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		})
	})

	t.Run("update moves", func(t *testing.T) {
		var frames []play.Frame
		app.call(t, http.MethodGet, framesPath, token, nil, http.StatusOK, &frames)
		var moved play.Frame
		app.call(t, http.MethodPut, framesPath+"/"+frames[0].ID, token, map[string]interface{}{"frameNumber": 2, "ball": map[string]float64{"x": 1, "y": 1}},
			http.StatusOK, &moved)
		assert.Equal(t, 2, moved.FrameNumber)
		require.NotNil(t, moved.Ball)

		var after []play.Frame
		app.call(t, http.MethodGet, framesPath, token, nil, http.StatusOK, &after)
		assert.Equal(t, []string{frames[1].ID, frames[2].ID, frames[0].ID, frames[3].ID}, frameIDs(after))
		assertNumbered(t, after)
	})

	t.Run("diff on update", func(t *testing.T) {
		var current play.Play
		app.call(t, http.MethodGet, "/api/plays/"+p.ID, token, nil, http.StatusOK, &current)
		keep := current.Frames[1]
		body := map[string]interface{}{
			"version": current.Version,
			"frames": []map[string]interface{}{
				{"duration": 4},
				{"id": keep.ID, "duration": 5},
			},
		}
		var updated play.Play
		app.call(t, http.MethodPut, "/api/plays/"+p.ID, token, body, http.StatusOK, &updated)
		require.Len(t, updated.Frames, 2)
		assertNumbered(t, updated.Frames)
		assert.NotEqual(t, keep.ID, updated.Frames[0].ID)
		assert.Equal(t, 4.0, updated.Frames[0].Duration)
		assert.Equal(t, keep.ID, updated.Frames[1].ID)
		assert.Equal(t, 5.0, updated.Frames[1].Duration)
		assert.Equal(t, keep.Positions, updated.Frames[1].Positions)
		assert.Equal(t, current.Version+1, updated.Version)
	})
}

func Test_playApi_duplicate(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	assistant := app.createUser(t, "ann", []string{user.RoleCoachAssistant}, "team-1")
	token := app.token(t, coach)

	var src play.Play
	app.call(t, http.MethodPost, "/api/plays", token, newPlayBody, http.StatusCreated, &src)
	app.call(t, http.MethodPut, "/api/plays/"+src.ID, token, map[string]bool{"isPublished": true}, http.StatusOK, &src)

	var cp play.Play
	app.call(t, http.MethodPost, "/api/plays/"+src.ID+"/duplicate", app.token(t, assistant), nil, http.StatusCreated, &cp)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, "Triangle Offense (Copy)", cp.Name)
	assert.False(t, cp.IsPublished)
	assert.Equal(t, assistant.ID, cp.CreatedBy)
	assert.Equal(t, src.TeamID, cp.TeamID)
	require.Len(t, cp.Frames, len(src.Frames))
	for i := range src.Frames {
		assert.NotEqual(t, src.Frames[i].ID, cp.Frames[i].ID)
		assert.Equal(t, src.Frames[i].Positions, cp.Frames[i].Positions)
		assert.Equal(t, src.Frames[i].Lines, cp.Frames[i].Lines)
		assert.Equal(t, src.Frames[i].Annotations, cp.Frames[i].Annotations)
	}

	var named play.Play
	app.call(t, http.MethodPost, "/api/plays/"+src.ID+"/duplicate", token, play.DuplicatePlay{NewName: " Triangle II "}, http.StatusCreated, &named)
	assert.Equal(t, "Triangle II", named.Name)
	app.call(t, http.MethodPost, "/api/plays/nope/duplicate", token, nil, http.StatusNotFound, nil)
}

func Test_playbookApi(t *testing.T) {
	app := setup(t)
	coach := app.createUser(t, "carl", []string{user.RoleCoach}, "team-1")
	player := app.createUser(t, "pete", []string{user.RolePlayer}, "team-1")
	rival := app.createUser(t, "rick", []string{user.RoleCoach}, "team-2")
	token, playerToken := app.token(t, coach), app.token(t, player)

	var pb play.Playbook
	app.call(t, http.MethodPost, "/api/playbooks", token, play.NewPlaybook{Name: "Zone Offense", TeamID: "team-9"}, http.StatusCreated, &pb)
	assert.Equal(t, "team-1", pb.TeamID) // coaches create in their own team

	var p1, p2 play.Play
	app.call(t, http.MethodPost, "/api/plays", token, map[string]interface{}{"name": "B", "category": "OFFENSIVE", "playbookId": pb.ID, "isPublished": true,
		"frames": []interface{}{map[string]interface{}{}}}, http.StatusCreated, &p1)
	app.call(t, http.MethodPost, "/api/plays", token, map[string]interface{}{"name": "A", "category": "OFFENSIVE", "playbookId": pb.ID}, http.StatusCreated, &p2)

	var got play.Playbook
	app.call(t, http.MethodGet, "/api/playbooks/"+pb.ID, token, nil, http.StatusOK, &got)
	require.Len(t, got.Plays, 2)
	assert.Equal(t, []string{"A", "B"}, []string{got.Plays[0].Name, got.Plays[1].Name})
	assert.Len(t, got.Plays[1].Frames, 1)

	// players only see the published plays of the playbook
	app.call(t, http.MethodGet, "/api/playbooks/"+pb.ID, playerToken, nil, http.StatusOK, &got)
	require.Len(t, got.Plays, 1)
	assert.Equal(t, p1.ID, got.Plays[0].ID)

	var list []play.Playbook
	app.call(t, http.MethodGet, "/api/playbooks?search=zone", playerToken, nil, http.StatusOK, &list)
	assert.Len(t, list, 1)
	app.call(t, http.MethodGet, "/api/playbooks", app.token(t, rival), nil, http.StatusOK, &list)
	assert.Empty(t, list)

	app.call(t, http.MethodPut, "/api/playbooks/"+pb.ID, token, map[string]string{"name": "Zone O"}, http.StatusOK, &got)
	assert.Equal(t, "Zone O", got.Name)
	app.call(t, http.MethodPut, "/api/playbooks/"+pb.ID, playerToken, map[string]string{"name": "Mine"}, http.StatusForbidden, nil)

	// another team's playbook cannot hold our plays
	var foreign play.Playbook
	app.call(t, http.MethodPost, "/api/playbooks", app.token(t, rival), play.NewPlaybook{Name: "Press"}, http.StatusCreated, &foreign)
	assert.Equal(t, "team-2", foreign.TeamID)
	var fieldErrs map[string]string
	app.call(t, http.MethodPost, "/api/plays", token, map[string]interface{}{"name": "C", "category": "OFFENSIVE", "playbookId": foreign.ID},
		http.StatusBadRequest, &fieldErrs)
	assert.Equal(t, map[string]string{"playbookId": "playbook not found"}, fieldErrs)
	fieldErrs = nil
	app.call(t, http.MethodPut, "/api/plays/"+p1.ID, token, map[string]interface{}{"playbookId": foreign.ID}, http.StatusBadRequest, &fieldErrs)
	assert.Equal(t, map[string]string{"playbookId": "playbook not found"}, fieldErrs)
	var kept play.Play
	app.call(t, http.MethodGet, "/api/plays/"+p1.ID, token, nil, http.StatusOK, &kept)
	require.NotNil(t, kept.PlaybookID)
	assert.Equal(t, pb.ID, *kept.PlaybookID)

	app.call(t, http.MethodDelete, "/api/playbooks/"+pb.ID, token, nil, http.StatusNoContent, nil)
	app.call(t, http.MethodGet, "/api/playbooks/"+pb.ID, token, nil, http.StatusNotFound, nil)

	// plays survive their playbook
	var detached play.Play
	app.call(t, http.MethodGet, "/api/plays/"+p2.ID, token, nil, http.StatusOK, &detached)
	assert.Nil(t, detached.PlaybookID)
}
