package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/hrcore-backend/pkg/enums"
)

type Employee struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	FullName  string               `gorm:"column:full_name;not null"`
	Email     string               `gorm:"column:email;not null;uniqueIndex"`
	Status    enums.EmployeeStatus `gorm:"column:status;not null"`
	Salary    decimal.Decimal      `gorm:"column:salary;type:numeric(12,2);not null"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Employee) TableName() string { return "employees" }
