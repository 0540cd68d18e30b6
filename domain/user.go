package domain

import (
	"net/mail"
	"strings"
	"time"
)

const (
	minPasswordLength = 6
	// bcrypt refuses longer input.
	maxPasswordBytes = 72
)

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Bio          string    `json:"bio,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserPatch carries a profile update. Nil fields are left unchanged.
type UserPatch struct {
	Name  *string
	Email *string
	Bio   *string
}

type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Bio   *string `json:"bio"`
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (in *SignupInput) validate() error {
	var errs fieldErrors
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if in.Name == "" {
		errs.add("name", "Name is required")
	}
	if !validEmail(in.Email) {
		errs.add("email", "Please provide a valid email")
	}
	if len(in.Password) < minPasswordLength {
		errs.add("password", "Password must be at least 6 characters")
	} else if len(in.Password) > maxPasswordBytes {
		errs.add("password", "Password must be at most 72 bytes")
	}
	return errs.err()
}

func (in *LoginInput) validate() error {
	var errs fieldErrors
	in.Email = NormalizeEmail(in.Email)
	if !validEmail(in.Email) {
		errs.add("email", "Please provide a valid email")
	}
	if in.Password == "" {
		errs.add("password", "Password is required")
	}
	return errs.err()
}

func (in ProfileInput) patch() (UserPatch, error) {
	var (
		errs fieldErrors
		p    UserPatch
	)
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			errs.add("name", "Name cannot be empty")
		} else {
			p.Name = &name
		}
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		if !validEmail(email) {
			errs.add("email", "Please provide a valid email")
		} else {
			p.Email = &email
		}
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		p.Bio = &bio
	}
	if err := errs.err(); err != nil {
		return UserPatch{}, err
	}
	return p, nil
}
