package models

import (
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RoleUser       = "user"
	RoleTechnician = "technician"
	RoleManager    = "manager"
	RoleAdmin      = "admin"
)

type User struct {
	Id         string    `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"not null"`
	Email      string    `json:"email" gorm:"unique;not null"`
	Password   []byte    `json:"-" gorm:"not null"`
	Role       string    `json:"role" gorm:"size:20;not null;default:user"`
	Active     bool      `json:"active" gorm:"not null;default:true"`
	EmployeeID *uint     `json:"employee_id"`
	Employee   *Employee `json:"employee,omitempty" gorm:"foreignKey:EmployeeID"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	if user.Id == "" {
		user.Id = uuid.NewString()
	}
	return
}

func (user *User) SetPassword(password string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), 12)
	user.Password = hashedPassword
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

// Employee is a workshop technician; kiosk terminals identify employees, not users.
type Employee struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	Name   string  `json:"name" gorm:"size:128;not null"`
	UserID *string `json:"user_id" gorm:"size:64;index"`
}
