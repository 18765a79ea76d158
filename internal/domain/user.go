// Package domain contains entities without transport, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

var (
	// ErrValidation marks input rejected before any state is touched.
	ErrValidation = errors.New("validation failed")

	ErrUsernameTooLong = fmt.Errorf("%w: username too long", ErrValidation)
	ErrUsernameEmpty   = fmt.Errorf("%w: username empty", ErrValidation)
	ErrUserIDEmpty     = fmt.Errorf("%w: user id empty", ErrValidation)
	ErrUserIDTooLong   = fmt.Errorf("%w: user id too long", ErrValidation)
	ErrUserType        = fmt.Errorf("%w: user type must be doctor or patient", ErrValidation)
)

type UserID string

// UserType is the role a participant plays in a consultation.
type UserType string

const (
	UserTypeDoctor  UserType = "doctor"
	UserTypePatient UserType = "patient"
)

func (t UserType) Valid() bool {
	return t == UserTypeDoctor || t == UserTypePatient
}

// User identifies a person as supplied by the client on join.
type User struct {
	ID       UserID   `json:"userId"`
	Type     UserType `json:"userType"`
	Username string   `json:"userName"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id, username string, userType UserType) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	if !userType.Valid() {
		return nil, ErrUserType
	}
	u := &User{ID: UserID(id), Type: userType}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
