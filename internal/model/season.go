package model

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SeasonPageSize is the fixed page size of season listings.
const SeasonPageSize = 20

// Season is one edition of the academic program.
//
// At most one season has Current set at any time; see service.SeasonService.
type Season struct {
	Base
	Number      int     `json:"number" db:"number"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`
	ImageFileID *string `json:"imageFileId" db:"image_file_id"`
	Current     bool    `json:"current" db:"current"`
}

var validate = validator.New()

// CreateSeasonPayload is the body of POST /seasons.
type CreateSeasonPayload struct {
	Number      int     `json:"number" validate:"required,min=1"`
	Title       string  `json:"title" validate:"required,min=1,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	ImageFileID *string `json:"imageFileId" validate:"omitempty,min=1,max=255"`
}

func (p *CreateSeasonPayload) Validate() error {
	return validate.Struct(p)
}

// UpdateSeasonPayload is the body of PATCH /seasons/:id.
//
// It cannot touch Current: only Create and Promote change which season is
// current.
type UpdateSeasonPayload struct {
	ID          uuid.UUID `param:"id" json:"-" validate:"required"`
	Title       *string   `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string   `json:"description" validate:"omitempty,max=5000"`
	ImageFileID *string   `json:"imageFileId" validate:"omitempty,max=255"`
}

func (p *UpdateSeasonPayload) Validate() error {
	return validate.Struct(p)
}

// SeasonIDPayload binds the :id path parameter.
type SeasonIDPayload struct {
	ID uuid.UUID `param:"id" validate:"required"`
}

func (p *SeasonIDPayload) Validate() error {
	return validate.Struct(p)
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SeasonQuery filters, sorts, and paginates season reads.
type SeasonQuery struct {
	// Search matches title case-insensitively.
	Search string `query:"search" validate:"omitempty,max=200"`
	// CurrentParam is the raw "current" query parameter; Normalize turns
	// it into Current.
	CurrentParam string    `query:"current" validate:"omitempty,oneof=true false"`
	Current      *bool     `query:"-"`
	Page         int       `query:"page" validate:"omitempty,min=1"`
	Sort         string    `query:"sort" validate:"omitempty,oneof=number title created_at"`
	Order        SortOrder `query:"order" validate:"omitempty,oneof=asc desc"`
}

func (q *SeasonQuery) Validate() error {
	return validate.Struct(q)
}

// Normalize fills the defaults: page 1, newest season number first.
func (q *SeasonQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Sort == "" {
		q.Sort = "number"
	}
	if q.Order == "" {
		q.Order = SortDesc
	}
	q.Search = strings.TrimSpace(q.Search)
	if q.Current == nil && q.CurrentParam != "" {
		v := q.CurrentParam == "true"
		q.Current = &v
	}
}

// Offset is the number of rows skipped for the current page.
func (q *SeasonQuery) Offset() int {
	return (q.Page - 1) * SeasonPageSize
}

// Matches applies the filter part of q to one season. Stores without a
// query language (the in-memory test store) use it.
func (q *SeasonQuery) Matches(s Season) bool {
	if q.Current != nil && s.Current != *q.Current {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(s.Title), strings.ToLower(q.Search)) {
		return false
	}
	return true
}
