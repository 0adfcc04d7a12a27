// Package training assigns training tasks to players and tracks their progress.
package training

import (
	"context"
	"time"

	"github.com/trezcool/huddle/core"
	"github.com/trezcool/huddle/core/user"
)

var (
	ErrNotFound        = core.NewNotFoundError("task")
	ErrNotAssigned     = core.NewForbiddenError("you are not assigned to this task")
	ErrUnknownAssignee = core.NewValidationError(nil, core.FieldError{Field: "assigneeIds", Error: "unknown user"})
)

type (
	Repository interface {
		CreateTask(ctx context.Context, t Task) (Task, error)
		// QueryTasks returns tasks with their assignments, by due date then creation date.
		QueryTasks(ctx context.Context, filter QueryFilter) ([]Task, error)
		GetTask(ctx context.Context, id string) (Task, error)
		// UpdateTask saves the task's fields and replaces its assignments.
		UpdateTask(ctx context.Context, t Task) (Task, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// DeleteTask deletes the task and its assignments.
		DeleteTask(ctx context.Context, id string) error
	}

	// UserChecker reports whether all the ids are existing users.
	UserChecker interface {
		UsersExist(ctx context.Context, ids ...string) (bool, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, nt NewTask, creator user.User) (Task, error)
		Query(ctx context.Context, filter QueryFilter) ([]Task, error)
		Get(ctx context.Context, id string) (Task, error)
		Update(ctx context.Context, id string, ut UpdateTask) (Task, error)
		Delete(ctx context.Context, id string) error
		UpdateProgress(ctx context.Context, id string, up UpdateProgress, assignee user.User) (Assignment, error)
	}

	Service struct {
		repo  Repository
		users UserChecker
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users UserChecker) *Service {
	return &Service{repo: repo, users: users}
}

func (svc *Service) checkAssignees(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ok, err := svc.users.UsersExist(ctx, ids...)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownAssignee
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nt NewTask, creator user.User) (Task, error) {
	if err := svc.checkAssignees(ctx, nt.AssigneeIDs); err != nil {
		return Task{}, err
	}
	teamID := nt.TeamID
	if teamID == "" {
		teamID = creator.TeamID
	}
	now := time.Now().UTC()
	t := Task{
		Title:       nt.Title,
		Description: nt.Description,
		DueDate:     utcPtr(nt.DueDate),
		TeamID:      teamID,
		CreatedBy:   creator.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.Assignments = assign(nil, nt.AssigneeIDs, now)
	return svc.repo.CreateTask(ctx, t)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Task, error) {
	filter.Clean()
	return svc.repo.QueryTasks(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, id string) (Task, error) {
	return svc.repo.GetTask(ctx, id)
}

func (svc *Service) Update(ctx context.Context, id string, ut UpdateTask) (Task, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	if ut.Title != nil {
		t.Title = core.CleanString(*ut.Title)
	}
	if ut.Description != nil {
		t.Description = core.CleanString(*ut.Description)
	}
	if ut.ClearDue {
		t.DueDate = nil
	} else if ut.DueDate != nil {
		t.DueDate = utcPtr(ut.DueDate)
	}
	if ut.AssigneeIDs != nil {
		if err := svc.checkAssignees(ctx, *ut.AssigneeIDs); err != nil {
			return Task{}, err
		}
		t.Assignments = assign(t.Assignments, *ut.AssigneeIDs, now)
	}
	t.UpdatedAt = now
	return svc.repo.UpdateTask(ctx, t)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteTask(ctx, id)
}

// UpdateProgress updates the assignee's own assignment.
func (svc *Service) UpdateProgress(ctx context.Context, id string, up UpdateProgress, assignee user.User) (Assignment, error) {
	t, err := svc.repo.GetTask(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	for _, a := range t.Assignments {
		if a.UserID != assignee.ID {
			continue
		}
		if err := up.apply(&a); err != nil {
			return Assignment{}, err
		}
		a.UpdatedAt = time.Now().UTC()
		return svc.repo.UpdateAssignment(ctx, a)
	}
	return Assignment{}, ErrNotAssigned
}

// IsAssigned reports whether usr is one of t's assignees.
func IsAssigned(usr user.User, t Task) bool {
	for _, a := range t.Assignments {
		if a.UserID == usr.ID {
			return true
		}
	}
	return false
}

// assign builds the assignments of userIDs, keeping the existing ones.
func assign(current []Assignment, userIDs []string, now time.Time) []Assignment {
	byUser := make(map[string]Assignment, len(current))
	for _, a := range current {
		byUser[a.UserID] = a
	}
	out := make([]Assignment, 0, len(userIDs))
	for _, id := range userIDs {
		if a, ok := byUser[id]; ok {
			out = append(out, a)
			continue
		}
		out = append(out, Assignment{UserID: id, Status: StatusTodo, UpdatedAt: now})
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
