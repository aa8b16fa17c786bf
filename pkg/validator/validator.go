package validator

import (
	"strings"

	apperrors "github.com/askwhyharsh/nearcontacts/pkg/errors"
)

const (
	ScopeLocation = "location"
	ScopeContacts = "contacts"

	MaxContactsPerSync = 5000
	maxAddressLength   = 500
	maxNameLength      = 200
)

type Validator interface {
	ValidatePermissionScope(scope string) error
	ValidateContactBatch(size int) error
	ValidateContactFields(firstName, lastName string, addresses []string) error
}

type validator struct{}

func NewValidator() Validator {
	return &validator{}
}

func (v *validator) ValidatePermissionScope(scope string) error {
	switch scope {
	case ScopeLocation, ScopeContacts:
		return nil
	}
	return apperrors.ErrInvalidPermissionScope
}

func (v *validator) ValidateContactBatch(size int) error {
	if size > MaxContactsPerSync {
		return apperrors.ErrTooManyContacts
	}
	return nil
}

// ValidateContactFields only bounds lengths. Empty names and an empty address
// list are legal; such contacts are dropped before ranking.
func (v *validator) ValidateContactFields(firstName, lastName string, addresses []string) error {
	if len(firstName) > maxNameLength || len(lastName) > maxNameLength {
		return apperrors.ErrInvalidContact
	}

	for _, a := range addresses {
		if len(strings.TrimSpace(a)) > maxAddressLength {
			return apperrors.ErrInvalidContact
		}
	}

	return nil
}
