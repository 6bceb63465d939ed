package employees

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/hrcore-backend/pkg/db"
	"github.com/angelmondragon/hrcore-backend/pkg/db/models"
	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

var (
	ErrNotFound      = errors.New("employee not found")
	ErrEmailTaken    = errors.New("employee email already registered")
	ErrStatusChanged = errors.New("employee status changed concurrently")
)

// Repository persists employees. Mutations only ever run inside the
// transaction that also writes the outbox and history rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, employee *models.Employee) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.EmployeeStatus, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, employee *models.Employee) error {
	if employee.ID == uuid.Nil {
		employee.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(employee).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&employee).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

// UpdateStatus moves the employee only if it is still in from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.EmployeeStatus, now time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Employee{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}
