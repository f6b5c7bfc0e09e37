package dto

type CreateBatchRequest struct {
	ProfileIDs  []string `json:"profile_ids" binding:"required,min=1"`
	Concurrency int      `json:"concurrency" binding:"min=0,max=64"`
	Async       bool     `json:"async"`
}

type QueuedBatchResponse struct {
	RequestID  string   `json:"request_id"`
	ProfileIDs []string `json:"profile_ids"`
	Status     string   `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
