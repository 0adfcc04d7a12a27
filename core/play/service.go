package play

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("play")
	ErrFrameNotFound    = core.NewNotFoundError("frame")
	ErrPlaybookNotFound = core.NewNotFoundError("playbook")
	ErrVersionConflict  = core.NewConflictError("the play was modified since it was read, reload it and retry")
)

// PlayMutation edits a play loaded with its frames ordered by frame number.
type PlayMutation func(p *Play) error

type (
	Repository interface {
		CreatePlaybook(ctx context.Context, pb Playbook) (Playbook, error)
		QueryPlaybooks(ctx context.Context, filter PlaybookFilter) ([]Playbook, error)
		// GetPlaybook returns the playbook; withPlays loads its plays (ordered by name) with their frames.
		GetPlaybook(ctx context.Context, id string, withPlays bool) (Playbook, error)
		UpdatePlaybook(ctx context.Context, pb Playbook) (Playbook, error)
		// DeletePlaybook deletes the playbook and detaches its plays.
		DeletePlaybook(ctx context.Context, id string) error

		// CreatePlay saves the play with its frames, numbered in order, at version 1.
		CreatePlay(ctx context.Context, p Play) (Play, error)
		// QueryPlays applies AND operation on available QueryFilter fields. Frames are not loaded.
		QueryPlays(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Play, error)
		// GetPlay returns the play with its frames ordered by frame number.
		GetPlay(ctx context.Context, id string) (Play, error)
		// MutatePlay runs mutate then persists the play's fields and frame list in one transaction:
		// frames with an empty ID are created, the others updated, and the play's frames missing from the list deleted.
		// The play version is incremented. A non-nil version that differs from the stored one yields ErrVersionConflict.
		// Nothing is written when mutate fails.
		MutatePlay(ctx context.Context, id string, version *int64, mutate PlayMutation) (Play, error)
		// DeletePlay deletes the play and its frames.
		DeletePlay(ctx context.Context, id string) error
	}

	ServiceInterface interface {
		CreatePlaybook(ctx context.Context, nb NewPlaybook, creator user.User) (Playbook, error)
		QueryPlaybooks(ctx context.Context, filter PlaybookFilter) ([]Playbook, error)
		GetPlaybook(ctx context.Context, id string, withPlays bool) (Playbook, error)
		UpdatePlaybook(ctx context.Context, id string, ub UpdatePlaybook) (Playbook, error)
		DeletePlaybook(ctx context.Context, id string) error

		Create(ctx context.Context, np NewPlay, creator user.User) (Play, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Play, error)
		Get(ctx context.Context, id string) (Play, error)
		Update(ctx context.Context, id string, up UpdatePlay) (Play, error)
		Delete(ctx context.Context, id string) error
		Duplicate(ctx context.Context, id string, dp DuplicatePlay, requester user.User) (Play, error)

		ListFrames(ctx context.Context, playID string) ([]Frame, error)
		GetFrame(ctx context.Context, playID, frameID string) (Frame, error)
		CreateFrame(ctx context.Context, playID string, nf NewFrame) (Frame, error)
		UpdateFrame(ctx context.Context, playID, frameID string, uf UpdateFrame) (Frame, error)
		DeleteFrame(ctx context.Context, playID, frameID string, version *int64) ([]Frame, error)
		ReorderFrames(ctx context.Context, playID string, rf ReorderFrames) ([]Frame, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Playbooks

func (svc *Service) CreatePlaybook(ctx context.Context, nb NewPlaybook, creator user.User) (Playbook, error) {
	teamID := nb.TeamID
	if teamID == "" {
		teamID = creator.TeamID
	}
	now := time.Now().UTC()
	return svc.repo.CreatePlaybook(ctx, Playbook{
		Name:        nb.Name,
		Description: nb.Description,
		TeamID:      teamID,
		CreatedBy:   creator.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) QueryPlaybooks(ctx context.Context, filter PlaybookFilter) ([]Playbook, error) {
	return svc.repo.QueryPlaybooks(ctx, filter)
}

func (svc *Service) GetPlaybook(ctx context.Context, id string, withPlays bool) (Playbook, error) {
	return svc.repo.GetPlaybook(ctx, id, withPlays)
}

func (svc *Service) UpdatePlaybook(ctx context.Context, id string, ub UpdatePlaybook) (Playbook, error) {
	pb, err := svc.repo.GetPlaybook(ctx, id, false)
	if err != nil {
		return Playbook{}, err
	}
	if ub.Name != nil {
		pb.Name = *ub.Name
	}
	if ub.Description != nil {
		pb.Description = core.CleanString(*ub.Description)
	}
	pb.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePlaybook(ctx, pb)
}

func (svc *Service) DeletePlaybook(ctx context.Context, id string) error {
	return svc.repo.DeletePlaybook(ctx, id)
}

// Plays

func (svc *Service) Create(ctx context.Context, np NewPlay, creator user.User) (Play, error) {
	teamID := np.TeamID
	if teamID == "" {
		teamID = creator.TeamID
	}
	if err := svc.checkPlaybook(ctx, np.PlaybookID, teamID); err != nil {
		return Play{}, err
	}
	frames := make([]Frame, len(np.Frames))
	for i, fc := range np.Frames {
		frames[i] = fc.toFrame()
	}
	renumber(frames)

	now := time.Now().UTC()
	return svc.repo.CreatePlay(ctx, Play{
		Name:        np.Name,
		Description: np.Description,
		Category:    np.Category,
		Tags:        np.Tags,
		IsPublished: np.IsPublished,
		TeamID:      teamID,
		CreatedBy:   creator.ID,
		PlaybookID:  nonEmpty(np.PlaybookID),
		Frames:      frames,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Play, error) {
	return svc.repo.QueryPlays(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, id string) (Play, error) {
	return svc.repo.GetPlay(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, up UpdatePlay) (Play, error) {
	if up.PlaybookID != nil && *up.PlaybookID != "" {
		p, err := svc.repo.GetPlay(ctx, id)
		if err != nil {
			return Play{}, err
		}
		if err := svc.checkPlaybook(ctx, up.PlaybookID, p.TeamID); err != nil {
			return Play{}, err
		}
	}

	return svc.repo.MutatePlay(ctx, id, up.Version, func(p *Play) error {
		if up.Name != nil {
			p.Name = *up.Name
		}
		if up.Description != nil {
			p.Description = core.CleanString(*up.Description)
		}
		if up.Category != nil {
			p.Category = *up.Category
		}
		if up.Tags != nil {
			p.Tags = up.Tags
		}
		if up.IsPublished != nil {
			p.IsPublished = *up.IsPublished
		}
		if up.PlaybookID != nil {
			p.PlaybookID = nonEmpty(up.PlaybookID)
		}
		if up.Frames != nil {
			frames, err := diffFrames(p.Frames, *up.Frames)
			if err != nil {
				return err
			}
			p.Frames = frames
		}
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeletePlay(ctx, id)
}

// Duplicate copies the play `id` with all its frames. The copy is unpublished and owned by requester.
func (svc *Service) Duplicate(ctx context.Context, id string, dp DuplicatePlay, requester user.User) (Play, error) {
	src, err := svc.repo.GetPlay(ctx, id)
	if err != nil {
		return Play{}, err
	}

	name := dp.NewName
	if name == "" {
		name = src.Name + " (Copy)"
	}
	frames := make([]Frame, len(src.Frames))
	for i, f := range src.Frames {
		frames[i] = f.copyContent()
	}
	renumber(frames)

	var playbookID *string
	if src.PlaybookID != nil {
		pbID := *src.PlaybookID
		playbookID = &pbID
	}
	now := time.Now().UTC()
	return svc.repo.CreatePlay(ctx, Play{
		Name:        name,
		Description: src.Description,
		Category:    src.Category,
		Tags:        append([]string{}, src.Tags...),
		IsPublished: false,
		TeamID:      src.TeamID,
		CreatedBy:   requester.ID,
		PlaybookID:  playbookID,
		Frames:      frames,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// Frames

func (svc *Service) ListFrames(ctx context.Context, playID string) ([]Frame, error) {
	p, err := svc.repo.GetPlay(ctx, playID)
	if err != nil {
		return nil, err
	}
	return p.Frames, nil
}

func (svc *Service) GetFrame(ctx context.Context, playID, frameID string) (Frame, error) {
	p, err := svc.repo.GetPlay(ctx, playID)
	if err != nil {
		return Frame{}, err
	}
	idx := indexOfFrame(p.Frames, frameID)
	if idx < 0 {
		return Frame{}, ErrFrameNotFound
	}
	return p.Frames[idx], nil
}

func (svc *Service) CreateFrame(ctx context.Context, playID string, nf NewFrame) (Frame, error) {
	var pos int
	p, err := svc.repo.MutatePlay(ctx, playID, nf.Version, func(p *Play) error {
		p.Frames, pos = insertFrame(p.Frames, nf.FrameContent.toFrame(), nf.FrameNumber)
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return Frame{}, err
	}
	return frameAt(p, pos)
}

func (svc *Service) UpdateFrame(ctx context.Context, playID, frameID string, uf UpdateFrame) (Frame, error) {
	var pos int
	p, err := svc.repo.MutatePlay(ctx, playID, uf.Version, func(p *Play) error {
		pos = indexOfFrame(p.Frames, frameID)
		if pos < 0 {
			return ErrFrameNotFound
		}
		uf.FrameContent.apply(&p.Frames[pos])
		p.Frames[pos].normalize()
		if uf.FrameNumber != nil {
			p.Frames, pos = moveFrame(p.Frames, pos, *uf.FrameNumber)
		}
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return Frame{}, err
	}
	return frameAt(p, pos)
}

// DeleteFrame deletes the frame and renumbers the remaining ones, which it returns.
func (svc *Service) DeleteFrame(ctx context.Context, playID, frameID string, version *int64) ([]Frame, error) {
	p, err := svc.repo.MutatePlay(ctx, playID, version, func(p *Play) error {
		frames, err := removeFrame(p.Frames, frameID)
		if err != nil {
			return err
		}
		p.Frames = frames
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Frames, nil
}

// ReorderFrames applies all the frame orders at once and returns the renumbered frames.
func (svc *Service) ReorderFrames(ctx context.Context, playID string, rf ReorderFrames) ([]Frame, error) {
	p, err := svc.repo.MutatePlay(ctx, playID, rf.Version, func(p *Play) error {
		frames, err := reorderFrames(p.Frames, rf.Frames)
		if err != nil {
			return err
		}
		p.Frames = frames
		p.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Frames, nil
}

// checkPlaybook ensures the playbook exists and groups plays of teamID (team-less playbooks are shared).
// Another team's playbook is reported as missing.
func (svc *Service) checkPlaybook(ctx context.Context, playbookID *string, teamID string) error {
	if playbookID == nil || *playbookID == "" {
		return nil
	}
	notFound := core.NewValidationError(nil, core.FieldError{Field: "playbookId", Error: ErrPlaybookNotFound.Error()})
	pb, err := svc.repo.GetPlaybook(ctx, *playbookID, false)
	if err != nil {
		if core.IsNotFound(err) {
			return notFound
		}
		return errors.Wrap(err, "getting playbook")
	}
	if pb.TeamID != "" && pb.TeamID != teamID {
		return notFound
	}
	return nil
}

func frameAt(p Play, pos int) (Frame, error) {
	if pos < 0 || pos >= len(p.Frames) {
		return Frame{}, ErrFrameNotFound
	}
	return p.Frames[pos], nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	if v := core.CleanString(*s); v != "" {
		return &v
	}
	return nil
}
