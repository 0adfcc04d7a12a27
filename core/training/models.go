package training

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/huddle/core"
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

type (
	Task struct {
		ID          string       `json:"id"`
		Title       string       `json:"title"`
		Description string       `json:"description"`
		DueDate     *time.Time   `json:"dueDate"`
		TeamID      string       `json:"teamId"`
		CreatedBy   string       `json:"createdBy"`
		CreatedAt   time.Time    `json:"createdAt"`
		UpdatedAt   time.Time    `json:"updatedAt"`
		Assignments []Assignment `json:"assignments"`
	}

	Assignment struct {
		TaskID    string    `json:"-"`
		UserID    string    `json:"userId"`
		Status    Status    `json:"status"`
		Progress  int       `json:"progress"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	NewTask struct {
		Title       string     `json:"title" validate:"required,notblank,max=200"`
		Description string     `json:"description" validate:"max=4000"`
		DueDate     *time.Time `json:"dueDate"`
		TeamID      string     `json:"teamId"`
		AssigneeIDs []string   `json:"assigneeIds" validate:"dive,required"`
	}

	// UpdateTask edits the task; a non-nil AssigneeIDs replaces the assignees, keeping the progress of those remaining.
	UpdateTask struct {
		Title       *string    `json:"title" validate:"omitempty,notblank,max=200"`
		Description *string    `json:"description" validate:"omitempty,max=4000"`
		DueDate     *time.Time `json:"dueDate"`
		ClearDue    bool       `json:"clearDueDate"`
		AssigneeIDs *[]string  `json:"assigneeIds" validate:"omitempty,dive,required"`
	}

	// UpdateProgress is sent by an assignee. When only one of Status and Progress is given the other follows:
	// done means 100%, 100% means done.
	UpdateProgress struct {
		Status   *Status `json:"status" validate:"omitempty,trainingstatus"`
		Progress *int    `json:"progress" validate:"omitempty,gte=0,lte=100"`
	}

	QueryFilter struct {
		TeamID     string `query:"team"`
		AssigneeID string `query:"assignee"`
		Status     Status `query:"status"`
	}
)

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.TeamID = core.CleanString(nt.TeamID)
	nt.AssigneeIDs = uniqueIDs(nt.AssigneeIDs)
	return validate.Struct(nt)
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	if ut.AssigneeIDs != nil {
		ids := uniqueIDs(*ut.AssigneeIDs)
		ut.AssigneeIDs = &ids
	}
	return validate.Struct(ut)
}

func (up *UpdateProgress) Validate(validate *validator.Validate) error {
	if up.Status == nil && up.Progress == nil {
		return core.NewValidationError(nil, core.FieldError{Field: "progress", Error: "status or progress is required"})
	}
	return validate.Struct(up)
}

func (qf *QueryFilter) Clean() {
	qf.TeamID = core.CleanString(qf.TeamID)
	qf.AssigneeID = core.CleanString(qf.AssigneeID)
	if !qf.Status.IsValid() {
		qf.Status = ""
	}
}

func uniqueIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range core.CleanStrings(ids) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// apply sets the assignment's status and progress so that done <=> 100%.
func (up UpdateProgress) apply(a *Assignment) error {
	status, progress := a.Status, a.Progress
	switch {
	case up.Status != nil && up.Progress != nil:
		status, progress = *up.Status, *up.Progress
		if (status == StatusDone) != (progress == 100) {
			return core.NewValidationError(nil, core.FieldError{Field: "progress", Error: "a task is done if and only if its progress is 100"})
		}
	case up.Status != nil:
		status = *up.Status
		switch status {
		case StatusDone:
			progress = 100
		case StatusTodo:
			progress = 0
		case StatusInProgress:
			if progress == 100 {
				progress = 99
			}
		}
	default:
		progress = *up.Progress
		switch progress {
		case 100:
			status = StatusDone
		case 0:
			status = StatusTodo
		default:
			status = StatusInProgress
		}
	}
	a.Status, a.Progress = status, progress
	return nil
}
