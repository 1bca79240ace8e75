package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskhive/server/internal/db"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrCategoryNotFound = errors.New("category not found")
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb, now: time.Now}
}

type CreateParams struct {
	Title       string
	Description string
	Priority    Priority
	Status      Status
	CategoryID  string
	DueDate     string
	Notes       string
}

func (s *Service) Create(userID string, p CreateParams) (*db.Task, error) {
	if p.CategoryID != "" {
		if err := s.checkCategory(p.CategoryID); err != nil {
			return nil, err
		}
	}
	priority := p.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	status := p.Status
	if status == "" {
		status = StatusTodo
	}
	now := s.now().UTC().Unix()
	row := db.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		CategoryID:  p.CategoryID,
		Title:       p.Title,
		Description: p.Description,
		Priority:    string(priority),
		Status:      string(status),
		DueDate:     p.DueDate,
		Notes:       p.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return s.Get(userID, row.ID)
}

func (s *Service) Get(userID, id string) (*db.Task, error) {
	var row db.Task
	err := s.db.Preload("Category").
		Where("id = ? AND user_id = ?", id, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type ListFilters struct {
	CategoryID string
	Priority   Priority
	Status     Status
	DueDate    string
	Overdue    bool
	SortBy     string
	SortOrder  string
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
	"priority":   "priority",
	"status":     "status",
	"title":      "title",
}

// List returns the caller's non-archived tasks, filtered and sorted.
func (s *Service) List(userID string, f ListFilters) ([]db.Task, error) {
	q := s.db.Preload("Category").
		Where("user_id = ? AND status <> ?", userID, string(StatusArchived))
	if f.CategoryID != "" {
		q = q.Where("category_id = ?", f.CategoryID)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", string(f.Priority))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.DueDate != "" {
		q = q.Where("due_date = ?", f.DueDate)
	}
	if f.Overdue {
		today := s.now().UTC().Format("2006-01-02")
		q = q.Where("due_date <> '' AND due_date < ? AND status NOT IN ?",
			today, []string{string(StatusCompleted), string(StatusArchived)})
	}
	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}
	var rows []db.Task
	if err := q.Order(column + " " + order).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) ListArchived(userID string) ([]db.Task, error) {
	var rows []db.Task
	err := s.db.Preload("Category").
		Where("user_id = ? AND status = ?", userID, string(StatusArchived)).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type UpdateParams struct {
	Title       *string
	Description *string
	Priority    *Priority
	Status      *Status
	CategoryID  *string
	DueDate     *string
	Notes       *string
}

// Update applies only the fields present in params. A status change goes
// through TransitionTo, never a raw assignment.
func (s *Service) Update(userID, id string, p UpdateParams) (*db.Task, error) {
	row, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	if p.CategoryID != nil && *p.CategoryID != "" {
		if err := s.checkCategory(*p.CategoryID); err != nil {
			return nil, err
		}
	}
	if p.Title != nil {
		row.Title = *p.Title
	}
	if p.Description != nil {
		row.Description = *p.Description
	}
	if p.Priority != nil {
		row.Priority = string(*p.Priority)
	}
	if p.CategoryID != nil {
		row.CategoryID = *p.CategoryID
	}
	if p.DueDate != nil {
		row.DueDate = *p.DueDate
	}
	if p.Notes != nil {
		row.Notes = *p.Notes
	}
	if p.Status != nil {
		TransitionTo(row, *p.Status)
	}
	row.UpdatedAt = s.now().UTC().Unix()
	if err := s.save(row); err != nil {
		return nil, err
	}
	return s.Get(userID, id)
}

// Delete hard-deletes the row. No tombstone.
func (s *Service) Delete(userID, id string) error {
	res := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&db.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Complete(userID, id string) (*db.Task, error) {
	return s.transition(userID, id, StatusCompleted)
}

func (s *Service) Archive(userID, id string) (*db.Task, error) {
	return s.transition(userID, id, StatusArchived)
}

// Unarchive restores the status held immediately before archiving,
// defaulting to todo, and clears the history slot.
func (s *Service) Unarchive(userID, id string) (*db.Task, error) {
	row, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	RestorePrevious(row)
	row.UpdatedAt = s.now().UTC().Unix()
	if err := s.save(row); err != nil {
		return nil, err
	}
	return s.Get(userID, id)
}

// FindByTitle returns the caller's tasks whose title equals title exactly
// (case-sensitive), archived ones included. A non-empty status narrows the
// match to tasks currently in that status.
func (s *Service) FindByTitle(userID, title string, status Status) ([]db.Task, error) {
	q := s.db.Preload("Category").
		Where("user_id = ? AND title = ?", userID, title)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []db.Task
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) transition(userID, id string, next Status) (*db.Task, error) {
	row, err := s.Get(userID, id)
	if err != nil {
		return nil, err
	}
	TransitionTo(row, next)
	row.UpdatedAt = s.now().UTC().Unix()
	if err := s.save(row); err != nil {
		return nil, err
	}
	return s.Get(userID, id)
}

func (s *Service) save(row *db.Task) error {
	return s.db.Model(&db.Task{}).Where("id = ?", row.ID).Updates(map[string]any{
		"category_id":     row.CategoryID,
		"title":           row.Title,
		"description":     row.Description,
		"priority":        row.Priority,
		"status":          row.Status,
		"previous_status": row.PreviousStatus,
		"due_date":        row.DueDate,
		"notes":           row.Notes,
		"updated_at":      row.UpdatedAt,
	}).Error
}

func (s *Service) checkCategory(id string) error {
	var count int64
	if err := s.db.Model(&db.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrCategoryNotFound
	}
	return nil
}
