package types

// PageInfo contains pagination metadata for list responses.
type PageInfo struct {
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
}

// ListResponse is a generic list response wrapper.
type ListResponse[T any] struct {
	Data     []T      `json:"data"`
	PageInfo PageInfo `json:"pagination"`
}
