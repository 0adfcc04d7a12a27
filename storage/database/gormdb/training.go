package gormdb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/trezcool/huddle/core/training"
)

type (
	taskRow struct {
		ID          string `gorm:"primaryKey"`
		Title       string
		Description string
		DueDate     *time.Time
		TeamID      string `gorm:"index"`
		CreatedBy   string
		CreatedAt   time.Time
		UpdatedAt   time.Time
		Assignments []assignmentRow `gorm:"foreignKey:TaskID"`
	}

	assignmentRow struct {
		TaskID    string `gorm:"primaryKey"`
		UserID    string `gorm:"primaryKey;index"`
		Status    string
		Progress  int
		UpdatedAt time.Time
	}
)

func (taskRow) TableName() string       { return "training_tasks" }
func (assignmentRow) TableName() string { return "training_assignments" }

func assignmentToRow(taskID string, a training.Assignment) assignmentRow {
	return assignmentRow{
		TaskID:    taskID,
		UserID:    a.UserID,
		Status:    string(a.Status),
		Progress:  a.Progress,
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func assignmentFromRow(row assignmentRow) training.Assignment {
	return training.Assignment{
		TaskID:    row.TaskID,
		UserID:    row.UserID,
		Status:    training.Status(row.Status),
		Progress:  row.Progress,
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func taskToRow(t training.Task) taskRow {
	row := taskRow{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		TeamID:      t.TeamID,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
	row.Assignments = make([]assignmentRow, 0, len(t.Assignments))
	for _, a := range t.Assignments {
		row.Assignments = append(row.Assignments, assignmentToRow(t.ID, a))
	}
	return row
}

func taskFromRow(row taskRow) training.Task {
	t := training.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		TeamID:      row.TeamID,
		CreatedBy:   row.CreatedBy,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		Assignments: make([]training.Assignment, 0, len(row.Assignments)),
	}
	if row.DueDate != nil {
		due := row.DueDate.UTC()
		t.DueDate = &due
	}
	for _, a := range row.Assignments {
		t.Assignments = append(t.Assignments, assignmentFromRow(a))
	}
	return t
}

func orderedAssignments(db *gorm.DB) *gorm.DB {
	return db.Order("user_id")
}

type trainingRepository struct {
	db *gorm.DB
}

var _ training.Repository = (*trainingRepository)(nil) // interface compliance check

func NewTrainingRepository(db *gorm.DB) *trainingRepository {
	return &trainingRepository{db: db}
}

func (repo trainingRepository) CreateTask(ctx context.Context, t training.Task) (training.Task, error) {
	t.ID = newID()
	row := taskToRow(t)
	if err := repo.db.WithContext(ctx).Create(&row).Error; err != nil {
		return training.Task{}, errors.Wrap(err, "inserting task")
	}
	return taskFromRow(row), nil
}

func (repo trainingRepository) QueryTasks(ctx context.Context, filter training.QueryFilter) ([]training.Task, error) {
	q := repo.db.WithContext(ctx).Model(&taskRow{}).Preload("Assignments", orderedAssignments)
	if filter.TeamID != "" {
		q = q.Where("team_id = ?", filter.TeamID)
	}
	switch {
	case filter.AssigneeID != "" && filter.Status != "":
		q = q.Where("id IN (?)", repo.db.Model(&assignmentRow{}).Select("task_id").
			Where("user_id = ? AND status = ?", filter.AssigneeID, string(filter.Status)))
	case filter.AssigneeID != "":
		q = q.Where("id IN (?)", repo.db.Model(&assignmentRow{}).Select("task_id").Where("user_id = ?", filter.AssigneeID))
	case filter.Status != "":
		q = q.Where("id IN (?)", repo.db.Model(&assignmentRow{}).Select("task_id").Where("status = ?", string(filter.Status)))
	}

	var rows []taskRow
	if err := q.Order("due_date IS NULL").Order("due_date").Order("created_at").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]training.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, taskFromRow(row))
	}
	return tasks, nil
}

func (repo trainingRepository) GetTask(ctx context.Context, id string) (training.Task, error) {
	if !validID(id) {
		return training.Task{}, training.ErrNotFound
	}
	var row taskRow
	err := repo.db.WithContext(ctx).Preload("Assignments", orderedAssignments).Where("id = ?", id).Take(&row).Error
	if err != nil {
		return training.Task{}, trapNotFound(err, training.ErrNotFound, "finding task")
	}
	return taskFromRow(row), nil
}

func (repo trainingRepository) UpdateTask(ctx context.Context, t training.Task) (training.Task, error) {
	row := taskToRow(t)
	err := repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&taskRow{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
			"title":       row.Title,
			"description": row.Description,
			"due_date":    row.DueDate,
			"updated_at":  row.UpdatedAt,
		})
		if res.Error != nil {
			return errors.Wrap(res.Error, "updating task")
		}
		if res.RowsAffected == 0 {
			return training.ErrNotFound
		}

		if err := tx.Where("task_id = ?", t.ID).Delete(&assignmentRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting assignments")
		}
		if len(row.Assignments) > 0 {
			if err := tx.Create(&row.Assignments).Error; err != nil {
				return errors.Wrap(err, "inserting assignments")
			}
		}
		return nil
	})
	if err != nil {
		return training.Task{}, err
	}
	return repo.GetTask(ctx, t.ID)
}

func (repo trainingRepository) UpdateAssignment(ctx context.Context, a training.Assignment) (training.Assignment, error) {
	row := assignmentToRow(a.TaskID, a)
	res := repo.db.WithContext(ctx).Model(&assignmentRow{}).
		Where("task_id = ? AND user_id = ?", row.TaskID, row.UserID).
		Updates(map[string]interface{}{
			"status":     row.Status,
			"progress":   row.Progress,
			"updated_at": row.UpdatedAt,
		})
	if res.Error != nil {
		return training.Assignment{}, errors.Wrap(res.Error, "updating assignment")
	}
	if res.RowsAffected == 0 {
		return training.Assignment{}, training.ErrNotAssigned
	}
	return assignmentFromRow(row), nil
}

func (repo trainingRepository) DeleteTask(ctx context.Context, id string) error {
	if !validID(id) {
		return training.ErrNotFound
	}
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&assignmentRow{}).Error; err != nil {
			return errors.Wrap(err, "deleting assignments")
		}
		res := tx.Where("id = ?", id).Delete(&taskRow{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "deleting task")
		}
		if res.RowsAffected == 0 {
			return training.ErrNotFound
		}
		return nil
	})
}
