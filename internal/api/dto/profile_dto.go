package dto

import (
	"time"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

type PutProfileRequest struct {
	Fields domain.Fields `json:"fields" binding:"required"`
	Note   string        `json:"note"`
}

type PutProfileResponse struct {
	ProfileID string `json:"profile_id"`
	Revision  int64  `json:"revision"`
}

type ListProfilesRequest struct {
	Query  string `form:"q"`
	Fields string `form:"fields"`
}

type ListProfilesResponse struct {
	Profiles []domain.Profile `json:"profiles"`
	Count    int              `json:"count"`
}

type HistoryResponse struct {
	ProfileID string            `json:"profile_id"`
	Revisions []domain.Revision `json:"revisions"`
}

type ListSubmissionsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListSubmissionsResponse struct {
	Submissions []SubmissionDTO `json:"submissions"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type SubmissionDTO struct {
	ID        string `json:"id"`
	BatchID   string `json:"batch_id"`
	Revision  int64  `json:"revision"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

func NewSubmissionDTO(rec domain.SubmissionRecord) SubmissionDTO {
	return SubmissionDTO{
		ID:        rec.ID,
		BatchID:   rec.BatchID,
		Revision:  rec.Revision,
		Attempt:   rec.Attempt,
		Outcome:   string(rec.Outcome),
		Detail:    rec.Detail,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
	}
}
