package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username,
			validation.Required.Error("username can't be empty"),
			validation.RuneLength(2, 100).Error("username must be between 2 and 100 characters long"),
		),
		validation.Field(&r.Password,
			validation.Required.Error("password can't be empty"),
			validation.By(strongPassword),
		),
	)
}

// strongPassword: 8-30 characters, at least one upper case letter, one digit and
// one special character, no whitespace.
func strongPassword(value interface{}) error {
	s, _ := value.(string)
	var problems []string
	if n := len([]rune(s)); n < 8 || n > 30 {
		problems = append(problems, "must be 8 to 30 characters long")
	}
	var upper, digit, special, space bool
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper {
		problems = append(problems, "must contain an upper case letter")
	}
	if !digit {
		problems = append(problems, "must contain a digit")
	}
	if !special {
		problems = append(problems, "must contain a special character")
	}
	if space {
		problems = append(problems, "must not contain whitespace")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, ", "))
	}
	return nil
}

func validate(v validation.Validatable) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
