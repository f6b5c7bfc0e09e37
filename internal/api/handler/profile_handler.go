package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/report-autofill/internal/api/dto"
	"github.com/cuongbtq/report-autofill/internal/domain"
)

const (
	defaultSubmissionPageSize = 20
	maxSubmissionPageSize     = 100
)

// PutProfile handles PUT /api/v1/profiles/:profile_id
// Stores a new revision of the profile
func (h *ProfileHandler) PutProfile(c *gin.Context) {
	profileID := c.Param("profile_id")

	var req dto.PutProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	revision, err := h.profiles.Put(c.Request.Context(), profileID, req.Fields, req.Note)
	if err != nil {
		h.fail(c, "Failed to store profile", err)
		return
	}

	h.logger.Info("Profile stored",
		slog.String("profile_id", profileID),
		slog.Int64("revision", revision),
	)

	c.JSON(http.StatusOK, dto.PutProfileResponse{
		ProfileID: profileID,
		Revision:  revision,
	})
}

// GetProfile handles GET /api/v1/profiles/:profile_id
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("profile_id"))
	if err != nil {
		h.fail(c, "Failed to get profile", err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ListProfiles handles GET /api/v1/profiles
// Lists profiles, optionally filtered by a substring search
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	var req dto.ListProfilesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	filter := domain.ProfileFilter{Query: strings.TrimSpace(req.Query)}
	if req.Fields != "" {
		for _, name := range strings.Split(req.Fields, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter.Fields = append(filter.Fields, name)
			}
		}
	}

	profiles, err := h.profiles.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list profiles", err)
		return
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}

	c.JSON(http.StatusOK, dto.ListProfilesResponse{
		Profiles: profiles,
		Count:    len(profiles),
	})
}

// GetHistory handles GET /api/v1/profiles/:profile_id/history
// Returns every revision of the profile, oldest first
func (h *ProfileHandler) GetHistory(c *gin.Context) {
	profileID := c.Param("profile_id")

	revisions := []domain.Revision{}
	for rev, err := range h.profiles.History(c.Request.Context(), profileID) {
		if err != nil {
			h.fail(c, "Failed to read profile history", err)
			return
		}
		revisions = append(revisions, rev)
	}

	c.JSON(http.StatusOK, dto.HistoryResponse{
		ProfileID: profileID,
		Revisions: revisions,
	})
}

// ListSubmissions handles GET /api/v1/profiles/:profile_id/submissions
// Pages through the submission log of a profile, oldest first
func (h *ProfileHandler) ListSubmissions(c *gin.Context) {
	profileID := c.Param("profile_id")

	var req dto.ListSubmissionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultSubmissionPageSize
	}
	if req.PageSize > maxSubmissionPageSize {
		req.PageSize = maxSubmissionPageSize
	}

	cursor, err := DecodeSubmissionCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	records, next, err := h.recorder.Page(c.Request.Context(), profileID, cursor, req.PageSize)
	if err != nil {
		h.fail(c, "Failed to list submissions", err)
		return
	}

	submissions := make([]dto.SubmissionDTO, len(records))
	for i, rec := range records {
		submissions[i] = dto.NewSubmissionDTO(rec)
	}

	c.JSON(http.StatusOK, dto.ListSubmissionsResponse{
		Submissions: submissions,
		NextCursor:  EncodeSubmissionCursor(next),
	})
}
