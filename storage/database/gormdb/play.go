package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/play"
)

type (
	playbookRow struct {
		ID          string `gorm:"primaryKey"`
		Name        string
		Description string
		TeamID      string `gorm:"index"`
		CreatedBy   string
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Plays       []playRow `gorm:"foreignKey:PlaybookID"`
	}

	playRow struct {
		ID          string `gorm:"primaryKey"`
		Name        string
		Description string
		Category    string
		Tags        datatypes.JSONSlice[string]
		IsPublished bool
		TeamID      string  `gorm:"index"`
		CreatedBy   string
		PlaybookID  *string `gorm:"index"`
		Version     int64
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Frames      []frameRow `gorm:"foreignKey:PlayID"`
	}

	frameRow struct {
		ID          string `gorm:"primaryKey"`
		PlayID      string `gorm:"index:idx_frames_play_frame_number"`
		FrameNumber int    `gorm:"index:idx_frames_play_frame_number"`
		Duration    float64
		Positions   datatypes.JSONSlice[play.PlayerPosition]
		Lines       datatypes.JSONSlice[play.Line]
		Annotations datatypes.JSONSlice[play.Annotation]
		BallX       *float64
		BallY       *float64
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}
)

func (playbookRow) TableName() string { return "playbooks" }
func (playRow) TableName() string     { return "plays" }
func (frameRow) TableName() string    { return "frames" }

// play columns the API may order by
var playOrderingColumns = map[string]string{
	"name":      "name",
	"category":  "category",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

type playRepository struct {
	db *gorm.DB
}

var _ play.Repository = (*playRepository)(nil) // interface compliance check

func NewPlayRepository(db *gorm.DB) *playRepository {
	return &playRepository{db: db}
}

// Row mapping

func frameToRow(f play.Frame) frameRow {
	row := frameRow{
		ID:          f.ID,
		PlayID:      f.PlayID,
		FrameNumber: f.FrameNumber,
		Duration:    f.Duration,
		Positions:   emptyIfNil(f.Positions),
		Lines:       emptyIfNil(f.Lines),
		Annotations: emptyIfNil(f.Annotations),
		CreatedAt:   f.CreatedAt.UTC(),
		UpdatedAt:   f.UpdatedAt.UTC(),
	}
	if f.Ball != nil {
		x, y := f.Ball.X, f.Ball.Y
		row.BallX, row.BallY = &x, &y
	}
	return row
}

func frameFromRow(row frameRow) play.Frame {
	f := play.Frame{
		ID:          row.ID,
		PlayID:      row.PlayID,
		FrameNumber: row.FrameNumber,
		Duration:    row.Duration,
		Positions:   emptyIfNil([]play.PlayerPosition(row.Positions)),
		Lines:       emptyIfNil([]play.Line(row.Lines)),
		Annotations: emptyIfNil([]play.Annotation(row.Annotations)),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.BallX != nil && row.BallY != nil {
		f.Ball = &play.Point{X: *row.BallX, Y: *row.BallY}
	}
	return f
}

func playToRow(p play.Play) playRow {
	return playRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    string(p.Category),
		Tags:        emptyIfNil(p.Tags),
		IsPublished: p.IsPublished,
		TeamID:      p.TeamID,
		CreatedBy:   p.CreatedBy,
		PlaybookID:  p.PlaybookID,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func playFromRow(row playRow) play.Play {
	p := play.Play{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Category:    play.Category(row.Category),
		Tags:        emptyIfNil([]string(row.Tags)),
		IsPublished: row.IsPublished,
		TeamID:      row.TeamID,
		CreatedBy:   row.CreatedBy,
		PlaybookID:  row.PlaybookID,
		Version:     row.Version,
		Frames:      make([]play.Frame, 0, len(row.Frames)),
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	for _, fr := range row.Frames {
		p.Frames = append(p.Frames, frameFromRow(fr))
	}
	return p
}

func playbookFromRow(row playbookRow) play.Playbook {
	pb := play.Playbook{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		TeamID:      row.TeamID,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.Plays != nil {
		pb.Plays = make([]play.Play, 0, len(row.Plays))
		for _, pr := range row.Plays {
			pb.Plays = append(pb.Plays, playFromRow(pr))
		}
	}
	return pb
}

func orderedFrames(db *gorm.DB) *gorm.DB {
	return db.Order("frame_number")
}

// Playbooks

func (repo playRepository) CreatePlaybook(ctx context.Context, pb play.Playbook) (play.Playbook, error) {
	row := playbookRow{
		ID:          newID(),
		Name:        pb.Name,
		Description: pb.Description,
		TeamID:      pb.TeamID,
		CreatedBy:   pb.CreatedBy,
		CreatedAt:   pb.CreatedAt.UTC(),
		UpdatedAt:   pb.UpdatedAt.UTC(),
	}
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return play.Playbook{}, errors.Wrap(err, "inserting playbook")
	}
	return playbookFromRow(row), nil
}

func (repo playRepository) QueryPlaybooks(ctx context.Context, filter play.PlaybookFilter) ([]play.Playbook, error) {
	q := repo.db.WithContext(ctx).Model(&playbookRow{})
	if filter.Search != "" {
		q = likeAny(q, filter.Search, "name", "description")
	}
	if filter.TeamID != "" {
		q = q.Where("team_id = ?", filter.TeamID)
	}

	var rows []playbookRow
	if err := q.Order("name").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying playbooks")
	}
	playbooks := make([]play.Playbook, 0, len(rows))
	for _, row := range rows {
		playbooks = append(playbooks, playbookFromRow(row))
	}
	return playbooks, nil
}

func (repo playRepository) GetPlaybook(ctx context.Context, id string, withPlays bool) (play.Playbook, error) {
	if !validID(id) {
		return play.Playbook{}, play.ErrPlaybookNotFound
	}
	q := repo.db.WithContext(ctx)
	if withPlays {
		q = q.Preload("Plays", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
			Preload("Plays.Frames", orderedFrames)
	}

	var row playbookRow
	if err := q.Where("id = ?", id).Take(&row).Error; err != nil {
		return play.Playbook{}, trapNotFound(err, play.ErrPlaybookNotFound, "finding playbook")
	}
	pb := playbookFromRow(row)
	if withPlays && pb.Plays == nil {
		pb.Plays = []play.Play{}
	}
	return pb, nil
}

func (repo playRepository) UpdatePlaybook(ctx context.Context, pb play.Playbook) (play.Playbook, error) {
	res := repo.db.WithContext(ctx).Model(&playbookRow{}).Where("id = ?", pb.ID).Updates(map[string]interface{}{
		"name":        pb.Name,
		"description": pb.Description,
		"updated_at":  pb.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return play.Playbook{}, errors.Wrap(res.Error, "updating playbook")
	}
	if res.RowsAffected == 0 {
		return play.Playbook{}, play.ErrPlaybookNotFound
	}
	return pb, nil
}

func (repo playRepository) DeletePlaybook(ctx context.Context, id string) error {
	if !validID(id) {
		return play.ErrPlaybookNotFound
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&playRow{}).Where("playbook_id = ?", id).UpdateColumn("playbook_id", nil).Error
		if err != nil {
			return errors.Wrap(err, "detaching plays")
		}
		res := tx.Where("id = ?", id).Delete(&playbookRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting playbook")
		}
		if res.RowsAffected == 0 {
			return play.ErrPlaybookNotFound
		}
		return nil
	})
}

// Plays

func (repo playRepository) CreatePlay(ctx context.Context, p play.Play) (play.Play, error) {
	p.ID = newID()
	p.Version = 1
	row := playToRow(p)
	row.Frames = make([]frameRow, 0, len(p.Frames))
	for i, f := range p.Frames {
		f.ID = newID()
		f.PlayID = p.ID
		f.FrameNumber = i
		f.CreatedAt, f.UpdatedAt = p.CreatedAt, p.UpdatedAt
		row.Frames = append(row.Frames, frameToRow(f))
	}

	// gorm inserts the frames with the play, in the same transaction
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return play.Play{}, errors.Wrap(err, "inserting play")
	}
	return playFromRow(row), nil
}

func (repo playRepository) QueryPlays(ctx context.Context, filter *play.QueryFilter, ordering []core.DBOrdering) ([]play.Play, error) {
	q := repo.db.WithContext(ctx).Model(&playRow{})

	if filter != nil {
		if filter.Search != "" {
			q = likeAny(q, filter.Search, "name", "description")
		}
		if filter.TeamID != "" {
			q = q.Where("team_id = ?", filter.TeamID)
		}
		if filter.Category != "" {
			q = q.Where("category = ?", string(filter.Category))
		}
		if filter.Tag != "" {
			q = q.Where(datatypes.JSONArrayQuery("tags").Contains(filter.Tag))
		}
		if filter.PlaybookID != "" {
			q = q.Where("playbook_id = ?", filter.PlaybookID)
		}
		if filter.CreatedBy != "" {
			q = q.Where("created_by = ?", filter.CreatedBy)
		}
		if filter.IsPublished != nil {
			q = q.Where("is_published = ?", *filter.IsPublished)
		}
	}

	var rows []playRow
	q = orderBy(q, core.FilterOrderings(ordering, playOrderingColumns), "updated_at DESC")
	if err := q.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying plays")
	}
	plays := make([]play.Play, 0, len(rows))
	for _, row := range rows {
		plays = append(plays, playFromRow(row))
	}
	return plays, nil
}

func (repo playRepository) GetPlay(ctx context.Context, id string) (play.Play, error) {
	row, err := repo.getPlayRow(repo.db.WithContext(ctx), id)
	if err != nil {
		return play.Play{}, err
	}
	return playFromRow(row), nil
}

func (repo playRepository) getPlayRow(db *gorm.DB, id string) (playRow, error) {
	if !validID(id) {
		return playRow{}, play.ErrNotFound
	}
	var row playRow
	if err := db.Preload("Frames", orderedFrames).Where("id = ?", id).Take(&row).Error; err != nil {
		return playRow{}, trapNotFound(err, play.ErrNotFound, "finding play")
	}
	return row, nil
}

func (repo playRepository) MutatePlay(ctx context.Context, id string, version *int64, mutate play.PlayMutation) (play.Play, error) {
	if !validID(id) {
		return play.Play{}, play.ErrNotFound
	}

	var result play.Play
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// bumping first locks the row until commit: concurrent writers queue up behind us
		if err := repo.bumpVersion(tx, id, version); err != nil {
			return err
		}

		row, err := repo.getPlayRow(tx, id)
		if err != nil {
			return err
		}
		p := playFromRow(row)
		if err := mutate(&p); err != nil {
			return err
		}

		err = tx.Model(&playRow{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":         p.Name,
			"description":  p.Description,
			"category":     string(p.Category),
			"tags":         datatypes.JSONSlice[string](emptyIfNil(p.Tags)),
			"is_published": p.IsPublished,
			"playbook_id":  p.PlaybookID,
			"updated_at":   time.Now().UTC(),
		}).Error
		if err != nil {
			return errors.Wrap(err, "updating play")
		}
		if err := repo.syncFrames(tx, id, row.Frames, p.Frames); err != nil {
			return err
		}

		if row, err = repo.getPlayRow(tx, id); err != nil {
			return err
		}
		result = playFromRow(row)
		return nil
	})
	if err != nil {
		return play.Play{}, err
	}
	return result, nil
}

func (repo playRepository) bumpVersion(tx *gorm.DB, id string, version *int64) error {
	q := tx.Model(&playRow{}).Where("id = ?", id)
	if version != nil {
		q = q.Where("version = ?", *version)
	}
	res := q.UpdateColumn("version", gorm.Expr("version + ?", 1))
	if res.Error != nil {
		return errors.Wrap(res.Error, "bumping play version")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var cnt int64
	if err := tx.Model(&playRow{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
		return errors.Wrap(err, "checking play")
	}
	if cnt == 0 {
		return play.ErrNotFound
	}
	return play.ErrVersionConflict
}

// syncFrames stores `frames` as the play's frames, numbered by position:
// frames without ID are created, the others updated, and the old frames left out deleted.
func (repo playRepository) syncFrames(tx *gorm.DB, playID string, old []frameRow, frames []play.Frame) error {
	known := make(map[string]frameRow, len(old))
	for _, fr := range old {
		known[fr.ID] = fr
	}

	keep := make(map[string]struct{}, len(frames))
	for _, f := range frames {
		if f.ID == "" {
			continue
		}
		if _, ok := known[f.ID]; !ok {
			return errors.Wrapf(play.ErrFrameNotFound, "frame %s", f.ID)
		}
		keep[f.ID] = struct{}{}
	}

	removed := make([]string, 0)
	for _, fr := range old {
		if _, ok := keep[fr.ID]; !ok {
			removed = append(removed, fr.ID)
		}
	}
	if len(removed) > 0 {
		if err := tx.Where("id IN ?", removed).Delete(&frameRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting frames")
		}
	}

	now := time.Now().UTC()
	for i, f := range frames {
		f.PlayID = playID
		f.FrameNumber = i
		f.UpdatedAt = now
		if f.ID == "" {
			f.ID = newID()
			f.CreatedAt = now
			row := frameToRow(f)
			if err := tx.Create(&row).Error; err != nil {
				return errors.Wrap(err, "inserting frame")
			}
			continue
		}

		f.CreatedAt = known[f.ID].CreatedAt
		row := frameToRow(f)
		err := tx.Model(&frameRow{}).Where("id = ? AND play_id = ?", f.ID, playID).
			Select("*").Omit("id", "play_id", "created_at").Updates(&row).Error
		if err != nil {
			return errors.Wrap(err, "updating frame")
		}
	}
	return nil
}

func (repo playRepository) DeletePlay(ctx context.Context, id string) error {
	if !validID(id) {
		return play.ErrNotFound
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("play_id = ?", id).Delete(&frameRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting frames")
		}
		res := tx.Where("id = ?", id).Delete(&playRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting play")
		}
		if res.RowsAffected == 0 {
			return play.ErrNotFound
		}
		return nil
	})
}
