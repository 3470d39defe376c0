package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// User mirrors the identity held by the hosted auth provider. The ID is the
// provider's subject claim; only Name changes after signup.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id" validate:"required,max=36"`
	Name      string    `gorm:"type:varchar(150)" json:"name" validate:"required,min=1,max=150"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(id, name, email string) (*User, error) {
	u := &User{
		ID:    id,
		Name:  name,
		Email: email,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}
