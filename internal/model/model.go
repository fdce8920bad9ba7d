// Package model holds the domain types shared by repositories, services,
// handlers, and background jobs, together with the request payloads that
// carry them in and out of the API.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Base carries the columns every table shares.
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// PaginatedResponse wraps one page of a list query.
type PaginatedResponse[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPaginatedResponse computes TotalPages from total and limit.
func NewPaginatedResponse[T any](data []T, page, limit int, total int64) PaginatedResponse[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginatedResponse[T]{
		Data:       data,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
