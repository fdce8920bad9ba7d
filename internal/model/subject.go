package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subject is a course offered in a season.
type Subject struct {
	Base
	SeasonID             uuid.UUID  `json:"seasonId" db:"season_id"`
	Code                 string     `json:"code" db:"code"`
	Name                 string     `json:"name" db:"name"`
	SessionDay           string     `json:"sessionDay" db:"session_day"`
	SessionTime          string     `json:"sessionTime" db:"session_time"`
	SessionLocation      string     `json:"sessionLocation" db:"session_location"`
	RegistrationOpen     bool       `json:"registrationOpen" db:"registration_open"`
	RegistrationClosesAt *time.Time `json:"registrationClosesAt" db:"registration_closes_at"`
}

// SessionDetails is the part of a subject whose change notifies people.
type SessionDetails struct {
	Day      string `json:"day" validate:"required,oneof=monday tuesday wednesday thursday friday saturday sunday"`
	Time     string `json:"time" validate:"required,datetime=15:04"`
	Location string `json:"location" validate:"required,min=1,max=200"`
}

// UpdateSessionPayload is the body of PUT /subjects/:id/session.
type UpdateSessionPayload struct {
	ID uuid.UUID `param:"id" json:"-" validate:"required"`
	SessionDetails
}

func (p *UpdateSessionPayload) Validate() error {
	return validate.Struct(p)
}

// Admin is a program administrator.
type Admin struct {
	Base
	Name   string `json:"name" db:"name"`
	Email  string `json:"email" db:"email"`
	Notify bool   `json:"notify" db:"notify"`
}

// Student is someone who registers to subjects.
type Student struct {
	Base
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// Recipient is one addressee of a fan-out.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Key identifies a recipient for deduplication: emails compare
// case-insensitively and ignore surrounding whitespace.
func (r Recipient) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Email))
}

// DedupRecipients keeps the first occurrence of every email, preserving
// order, and drops entries without an email.
func DedupRecipients(recipients []Recipient) []Recipient {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]Recipient, 0, len(recipients))
	for _, r := range recipients {
		key := r.Key()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
