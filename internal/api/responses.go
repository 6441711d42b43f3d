package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}

type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Database string `json:"database,omitempty" example:"ok"`
}

// Page is the envelope for paginated list endpoints.
type Page[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page" example:"1"`
	Size  int `json:"size" example:"20"`
	Total int `json:"total" example:"57"`
}

func NewPage[T any](items []T, p Pagination, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: p.Page, Size: p.Size, Total: total}
}
