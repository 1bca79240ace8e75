package category

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"taskhive/server/internal/db"
)

var ErrNotFound = errors.New("category not found")

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(gdb *gorm.DB) *Service {
	return &Service{db: gdb, now: time.Now}
}

func (s *Service) List() ([]db.Category, error) {
	var rows []db.Category
	if err := s.db.Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Service) Get(id string) (*db.Category, error) {
	var row db.Category
	err := s.db.Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

type Params struct {
	Name        string
	Description string
	Color       string
}

func (s *Service) Create(p Params) (*db.Category, error) {
	now := s.now().UTC().Unix()
	row := db.Category{
		ID:          uuid.NewString(),
		Name:        p.Name,
		Description: p.Description,
		Color:       p.Color,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Service) Update(id string, p Params) (*db.Category, error) {
	row, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	row.Name = p.Name
	row.Description = p.Description
	row.Color = p.Color
	row.UpdatedAt = s.now().UTC().Unix()
	err = s.db.Model(&db.Category{}).Where("id = ?", id).Updates(map[string]any{
		"name":        row.Name,
		"description": row.Description,
		"color":       row.Color,
		"updated_at":  row.UpdatedAt,
	}).Error
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Delete removes the category and nulls the reference on dependent tasks.
// Tasks themselves are never cascaded.
func (s *Service) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&db.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&db.Task{}).
			Where("category_id = ?", id).
			Update("category_id", "").Error
	})
}
