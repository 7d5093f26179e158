package utils

import (
	"math"
	"strconv"
)

// PaginationParams are reusable pagination parameters for commands that
// page through result sets (e.g. /ds club member listings).
type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
	Limit    int
}

// PaginationMeta carries pagination metadata back to the caller.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
	TotalCount int64 `json:"total_count"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// PaginatedResponse wraps a page of results with its metadata.
type PaginatedResponse[T any] struct {
	Data       []T            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// NewPaginationParams builds pagination parameters, clamping to sane defaults.
func NewPaginationParams(page, pageSize int) *PaginationParams {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize

	return &PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   offset,
		Limit:    pageSize,
	}
}

// ParsePaginationParams parses page/pageSize from strings (e.g. command args).
func ParsePaginationParams(pageStr, pageSizeStr string) *PaginationParams {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}

	pageSize, err := strconv.Atoi(pageSizeStr)
	if err != nil || pageSize < 1 {
		pageSize = 20
	}

	return NewPaginationParams(page, pageSize)
}

// NewPaginationMeta computes pagination metadata for a result set.
func NewPaginationMeta(page, pageSize int, totalCount int64) PaginationMeta {
	totalPages := int(math.Ceil(float64(totalCount) / float64(pageSize)))

	return PaginationMeta{
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		TotalCount: totalCount,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// NewPaginatedResponse builds a paginated response from a page of data.
func NewPaginatedResponse[T any](data []T, params *PaginationParams, totalCount int64) PaginatedResponse[T] {
	return PaginatedResponse[T]{
		Data:       data,
		Pagination: NewPaginationMeta(params.Page, params.PageSize, totalCount),
	}
}
