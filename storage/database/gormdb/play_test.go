package gormdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/play"
	"github.com/trezcool/huddle/core/user"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

var coach = user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6a001", Name: "Coach", Roles: []string{user.RoleCoach}, TeamID: "team-1"}

func newPlayService(t *testing.T) *play.Service {
	return play.NewService(NewPlayRepository(newTestDB(t)))
}

func floatPtr(f float64) *float64 { return &f }

func sampleContent(label string) play.FrameContent {
	return play.FrameContent{
		Duration:    floatPtr(1.5),
		Positions:   []play.PlayerPosition{{PlayerID: "p1", Label: label, Team: "offense", X: 10, Y: 20}},
		Lines:       []play.Line{{Kind: "pass", Points: []play.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}}},
		Annotations: []play.Annotation{{Kind: "text", Text: label, X: 1, Y: 2, Points: []play.Point{}}},
		Ball:        &play.Point{X: 10, Y: 20},
	}
}

func createPlay(t *testing.T, svc *play.Service, name string, frames ...play.FrameContent) play.Play {
	t.Helper()
	p, err := svc.Create(context.Background(), play.NewPlay{
		Name:     name,
		Category: play.CategoryOffensive,
		Tags:     []string{"motion", "zone"},
		Frames:   frames,
	}, coach)
	require.NoError(t, err)
	return p
}

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
		assert.Equal(t, i, f.FrameNumber)
	}
}

func TestCreateAndGetPlay(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)

	created := createPlay(t, svc, "Horns", sampleContent("PG"))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, coach.ID, created.CreatedBy)
	assert.Equal(t, coach.TeamID, created.TeamID)
	require.Len(t, created.Frames, 1)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Frames, 1)

	want := sampleContent("PG")
	f := got.Frames[0]
	assert.Equal(t, 0, f.FrameNumber)
	assert.Equal(t, *want.Duration, f.Duration)
	assert.Equal(t, want.Positions, f.Positions)
	assert.Equal(t, want.Lines, f.Lines)
	assert.Equal(t, want.Annotations, f.Annotations)
	assert.Equal(t, want.Ball, f.Ball)
	assert.Equal(t, []string{"motion", "zone"}, got.Tags)

	_, err = svc.Get(ctx, "not-a-uuid")
	assert.True(t, core.IsNotFound(err))
	_, err = svc.Get(ctx, "0f6c3c2e-7a0e-4d5b-8a46-111111111111")
	assert.True(t, core.IsNotFound(err))
}

func TestDeleteFrameRenumbers(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	p := createPlay(t, svc, "Floppy", sampleContent("0"), sampleContent("1"), sampleContent("2"))
	orig := frameIDs(p.Frames)

	remaining, err := svc.DeleteFrame(ctx, p.ID, orig[1], nil)
	require.NoError(t, err)
	assert.Equal(t, []string{orig[0], orig[2]}, frameIDs(remaining))
	assertNumbered(t, remaining)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "2", got.Frames[1].Annotations[0].Text)

	// last frames
	_, err = svc.DeleteFrame(ctx, p.ID, orig[0], nil)
	require.NoError(t, err)
	remaining, err = svc.DeleteFrame(ctx, p.ID, orig[2], nil)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = svc.DeleteFrame(ctx, p.ID, orig[2], nil)
	assert.True(t, core.IsNotFound(err))
}

func TestReorderFrames(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	p := createPlay(t, svc, "Spain", sampleContent("0"), sampleContent("1"), sampleContent("2"))
	ids := frameIDs(p.Frames)

	t.Run("reverse", func(t *testing.T) {
		frames, err := svc.ReorderFrames(ctx, p.ID, play.ReorderFrames{Frames: []play.FrameOrder{
			{FrameID: ids[0], FrameNumber: 2},
			{FrameID: ids[1], FrameNumber: 1, FrameContent: play.FrameContent{Duration: floatPtr(4)}},
			{FrameID: ids[2], FrameNumber: 0},
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, frameIDs(frames))
		assertNumbered(t, frames)
		assert.Equal(t, 4.0, frames[1].Duration)
	})

	t.Run("frame of another play commits nothing", func(t *testing.T) {
		other := createPlay(t, svc, "Other", sampleContent("x"))
		before, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)

		_, err = svc.ReorderFrames(ctx, p.ID, play.ReorderFrames{Frames: []play.FrameOrder{
			{FrameID: before.Frames[0].ID, FrameNumber: 1},
			{FrameID: other.Frames[0].ID, FrameNumber: 0},
		}})
		assert.True(t, core.IsNotFound(err))

		after, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, frameIDs(before.Frames), frameIDs(after.Frames))
	})
}

func TestFrameVersionConflict(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	p := createPlay(t, svc, "Elevator", sampleContent("0"))

	stale := p.Version
	f, err := svc.CreateFrame(ctx, p.ID, play.NewFrame{Version: &stale, FrameContent: sampleContent("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.FrameNumber)

	_, err = svc.CreateFrame(ctx, p.ID, play.NewFrame{Version: &stale, FrameContent: sampleContent("2")})
	assert.True(t, core.IsConflict(err))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Frames, 2)
	assert.Equal(t, stale+1, got.Version)

	current := got.Version
	_, err = svc.UpdateFrame(ctx, p.ID, f.ID, play.UpdateFrame{Version: &current, FrameContent: play.FrameContent{Duration: floatPtr(2)}})
	require.NoError(t, err)
}

func TestCreateAndMoveFrame(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	p := createPlay(t, svc, "Chicago", sampleContent("0"), sampleContent("1"))
	ids := frameIDs(p.Frames)

	at := 0
	inserted, err := svc.CreateFrame(ctx, p.ID, play.NewFrame{FrameNumber: &at, FrameContent: sampleContent("new")})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted.FrameNumber)

	frames, err := svc.ListFrames(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{inserted.ID, ids[0], ids[1]}, frameIDs(frames))
	assertNumbered(t, frames)

	to := 2
	moved, err := svc.UpdateFrame(ctx, p.ID, inserted.ID, play.UpdateFrame{FrameNumber: &to})
	require.NoError(t, err)
	assert.Equal(t, 2, moved.FrameNumber)
	assert.Equal(t, "new", moved.Annotations[0].Text)

	frames, err = svc.ListFrames(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[0], ids[1], inserted.ID}, frameIDs(frames))

	_, err = svc.GetFrame(ctx, p.ID, "0f6c3c2e-7a0e-4d5b-8a46-111111111111")
	assert.True(t, core.IsNotFound(err))
}

func TestUpdatePlayFramesDiff(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	p := createPlay(t, svc, "Pistol", sampleContent("0"), sampleContent("1"), sampleContent("2"))
	ids := frameIDs(p.Frames)

	name := "Pistol Flare"
	frames := []play.FrameInput{
		{FrameID: ids[2], FrameContent: play.FrameContent{Duration: floatPtr(3)}},
		{FrameContent: sampleContent("fresh")},
		{FrameID: ids[0]},
	}
	version := p.Version
	updated, err := svc.Update(ctx, p.ID, play.UpdatePlay{Name: &name, Version: &version, Frames: &frames})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, version+1, updated.Version)
	require.Len(t, updated.Frames, 3)
	assertNumbered(t, updated.Frames)
	assert.Equal(t, ids[2], updated.Frames[0].ID)
	assert.Equal(t, 3.0, updated.Frames[0].Duration)
	assert.NotContains(t, []string{ids[0], ids[1], ids[2]}, updated.Frames[1].ID)
	assert.Equal(t, "fresh", updated.Frames[1].Annotations[0].Text)
	assert.Equal(t, ids[0], updated.Frames[2].ID)

	// stale version
	_, err = svc.Update(ctx, p.ID, play.UpdatePlay{Name: &name, Version: &version})
	assert.True(t, core.IsConflict(err))

	// without frames, the frames are untouched
	published := true
	updated, err = svc.Update(ctx, p.ID, play.UpdatePlay{IsPublished: &published})
	require.NoError(t, err)
	assert.True(t, updated.IsPublished)
	assert.Len(t, updated.Frames, 3)
}

func TestDuplicatePlay(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	src, err := svc.Create(ctx, play.NewPlay{
		Name:        "Triangle Offense",
		Category:    play.CategoryOffensive,
		IsPublished: true,
		Frames:      []play.FrameContent{sampleContent("0"), sampleContent("1")},
	}, coach)
	require.NoError(t, err)

	requester := user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6a002", Roles: []string{user.RoleCoachAssistant}}
	cp, err := svc.Duplicate(ctx, src.ID, play.DuplicatePlay{}, requester)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, cp.ID)
	assert.Equal(t, "Triangle Offense (Copy)", cp.Name)
	assert.False(t, cp.IsPublished)
	assert.Equal(t, requester.ID, cp.CreatedBy)
	assert.Equal(t, src.Category, cp.Category)
	require.Len(t, cp.Frames, len(src.Frames))
	for i := range src.Frames {
		assert.NotEqual(t, src.Frames[i].ID, cp.Frames[i].ID)
		assert.Equal(t, i, cp.Frames[i].FrameNumber)
		assert.Equal(t, src.Frames[i].Positions, cp.Frames[i].Positions)
		assert.Equal(t, src.Frames[i].Lines, cp.Frames[i].Lines)
		assert.Equal(t, src.Frames[i].Annotations, cp.Frames[i].Annotations)
		assert.Equal(t, src.Frames[i].Ball, cp.Frames[i].Ball)
	}

	named, err := svc.Duplicate(ctx, src.ID, play.DuplicatePlay{NewName: "Triangle 2"}, requester)
	require.NoError(t, err)
	assert.Equal(t, "Triangle 2", named.Name)

	_, err = svc.Duplicate(ctx, "0f6c3c2e-7a0e-4d5b-8a46-111111111111", play.DuplicatePlay{}, requester)
	assert.True(t, core.IsNotFound(err))
	plays, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, plays, 3)
}

func TestQueryPlays(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)
	createPlay(t, svc, "Horns Flare")
	_, err := svc.Create(ctx, play.NewPlay{Name: "Box and One", Category: play.CategoryDefensive, Tags: []string{"Zone"}, IsPublished: true}, coach)
	require.NoError(t, err)

	published := true
	tests := []struct {
		name      string
		filter    *play.QueryFilter
		ordering  []core.DBOrdering
		wantNames []string
	}{
		{name: "all by name", ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, wantNames: []string{"Box and One", "Horns Flare"}},
		{name: "search", filter: &play.QueryFilter{Search: "HORNS"}, wantNames: []string{"Horns Flare"}},
		{name: "category", filter: &play.QueryFilter{Category: play.CategoryDefensive}, wantNames: []string{"Box and One"}},
		{name: "tag", filter: &play.QueryFilter{Tag: "motion"}, wantNames: []string{"Horns Flare"}},
		{name: "published", filter: &play.QueryFilter{IsPublished: &published}, wantNames: []string{"Box and One"}},
		{name: "other team", filter: &play.QueryFilter{TeamID: "team-2"}, wantNames: []string{}},
		{name: "unknown ordering field is ignored", ordering: []core.DBOrdering{{Field: "name; DROP TABLE plays"}}, wantNames: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plays, err := svc.Query(ctx, tt.filter, tt.ordering)
			require.NoError(t, err)
			if tt.wantNames == nil {
				assert.Len(t, plays, 2)
				return
			}
			names := make([]string, 0, len(plays))
			for _, p := range plays {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestPlaybooks(t *testing.T) {
	ctx := context.Background()
	svc := newPlayService(t)

	pb, err := svc.CreatePlaybook(ctx, play.NewPlaybook{Name: "Playoffs"}, coach)
	require.NoError(t, err)
	assert.Equal(t, coach.TeamID, pb.TeamID)

	pbID := pb.ID
	p, err := svc.Create(ctx, play.NewPlay{Name: "ATO", Category: play.CategorySetPiece, PlaybookID: &pbID, Frames: []play.FrameContent{sampleContent("0")}}, coach)
	require.NoError(t, err)
	require.NotNil(t, p.PlaybookID)

	got, err := svc.GetPlaybook(ctx, pb.ID, true)
	require.NoError(t, err)
	require.Len(t, got.Plays, 1)
	assert.Len(t, got.Plays[0].Frames, 1)

	unknown := "0f6c3c2e-7a0e-4d5b-8a46-111111111111"
	_, err = svc.Create(ctx, play.NewPlay{Name: "Lost", Category: play.CategorySetPiece, PlaybookID: &unknown}, coach)
	assert.IsType(t, &core.ValidationError{}, err)

	// playbooks only group plays of their team
	rival := user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6a009", Roles: []string{user.RoleCoach}, TeamID: "team-2"}
	foreign, err := svc.CreatePlaybook(ctx, play.NewPlaybook{Name: "Press"}, rival)
	require.NoError(t, err)
	foreignID := foreign.ID
	_, err = svc.Create(ctx, play.NewPlay{Name: "Stolen", Category: play.CategorySetPiece, PlaybookID: &foreignID}, coach)
	assert.IsType(t, &core.ValidationError{}, err)
	_, err = svc.Update(ctx, p.ID, play.UpdatePlay{PlaybookID: &foreignID})
	assert.IsType(t, &core.ValidationError{}, err)

	shared, err := svc.CreatePlaybook(ctx, play.NewPlaybook{Name: "Basics"}, user.User{ID: "5b1d7c57-3f4e-4b8e-9f9e-0c43a1f6a00a", Roles: []string{user.RoleAdmin}})
	require.NoError(t, err)
	assert.Empty(t, shared.TeamID)
	sharedID := shared.ID
	_, err = svc.Create(ctx, play.NewPlay{Name: "Shell", Category: play.CategorySetPiece, PlaybookID: &sharedID}, coach)
	require.NoError(t, err)

	newName := "Playoffs 2025"
	updated, err := svc.UpdatePlaybook(ctx, pb.ID, play.UpdatePlaybook{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, newName, updated.Name)

	require.NoError(t, svc.DeletePlaybook(ctx, pb.ID))
	detached, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, detached.PlaybookID)
	assert.Len(t, detached.Frames, 1)

	assert.True(t, core.IsNotFound(svc.DeletePlaybook(ctx, pb.ID)))
}

func TestDeletePlay(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	svc := play.NewService(NewPlayRepository(db))
	p := createPlay(t, svc, "Delete me", sampleContent("0"), sampleContent("1"))

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err := svc.Get(ctx, p.ID)
	assert.True(t, core.IsNotFound(err))

	var cnt int64
	require.NoError(t, db.Model(&frameRow{}).Where("play_id = ?", p.ID).Count(&cnt).Error)
	assert.Zero(t, cnt)
	assert.True(t, core.IsNotFound(svc.Delete(ctx, p.ID)))
}
