// Package dto provides Data Transfer Objects for API requests/responses.
package dto

// --- Pagination ---

// PaginationResponse contains pagination metadata.
type PaginationResponse struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewPaginationResponse creates pagination response.
func NewPaginationResponse(page, limit int, totalItems int64) PaginationResponse {
	totalPages := 0
	if limit > 0 {
		totalPages = int(totalItems) / limit
		if int(totalItems)%limit > 0 {
			totalPages++
		}
	}
	return PaginationResponse{
		Page:       page,
		Limit:      limit,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// --- Error Response ---

// ErrorResponse is the body rendered for every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
