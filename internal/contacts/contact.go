// Package contacts holds the address book entries a device syncs up, and the
// stores that keep them between ranking passes.
package contacts

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Store keeps one address book per session. Replace swaps the whole book;
// List returns it in the order it was synced. Touch keeps the book alive as
// long as its session is.
type Store interface {
	Replace(ctx context.Context, sessionID string, records []Record) error
	List(ctx context.Context, sessionID string) ([]Record, error)
	Touch(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
}

type Address struct {
	Label            string `json:"label,omitempty"`
	FormattedAddress string `json:"formatted_address"`
}

type Record struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
}

// DisplayName joins first and last name. Either may be missing.
func (r Record) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// FirstAddress returns the first address with any text in it.
func (r Record) FirstAddress() (string, bool) {
	for _, a := range r.Addresses {
		if addr := strings.TrimSpace(a.FormattedAddress); addr != "" {
			return addr, true
		}
	}
	return "", false
}

// WithAddresses drops records that have nothing to geocode.
func WithAddresses(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if _, ok := r.FirstAddress(); ok {
			out = append(out, r)
		}
	}
	return out
}

// AssignIDs gives every record without an ID a fresh one.
func AssignIDs(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			r.ID = uuid.New().String()
		}
		out[i] = r
	}
	return out
}
