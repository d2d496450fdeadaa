package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/apnisec/trackify/internal/middleware"
	"github.com/apnisec/trackify/internal/model"
	"github.com/apnisec/trackify/internal/repository"
)

// IssueNotifier delivers the issue-created email, fire-and-forget.
type IssueNotifier interface {
	IssueCreated(ctx context.Context, email string, issue model.Issue) error
}

// IssueHandler bundles dependencies for the issue CRUD endpoints.  All
// operations are scoped to the authenticated user; ownership is enforced in
// the repository queries, not here.
type IssueHandler struct {
	Issues   *repository.IssueRepo
	Notifier IssueNotifier
}

func NewIssueHandler(issues *repository.IssueRepo, n IssueNotifier) *IssueHandler {
	return &IssueHandler{Issues: issues, Notifier: n}
}

type createIssueReq struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

type updateIssueReq struct {
	Type        *string `json:"type"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
}

type issueResp struct {
	ID          uint64    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toIssueResp(i model.Issue) issueResp {
	return issueResp{
		ID: i.ID, Type: i.Type, Title: i.Title, Description: i.Description,
		Status: i.Status, Priority: i.Priority, CreatedAt: i.CreatedAt, UpdatedAt: i.UpdatedAt,
	}
}

// List returns the user's issues, optionally filtered by ?type=&status=&priority=.
// Unknown filter values are rejected rather than silently ignored.
func (h *IssueHandler) List(c echo.Context) error {
	uid := middleware.UserID(c)

	var f repository.IssueFilters
	if t := c.QueryParam("type"); t != "" {
		if !model.ValidIssueType(t) {
			return fail(c, http.StatusBadRequest, "unknown issue type")
		}
		f.Type = t
	}
	if s := c.QueryParam("status"); s != "" {
		if !model.ValidIssueStatus(s) {
			return fail(c, http.StatusBadRequest, "unknown issue status")
		}
		f.Status = s
	}
	if p := c.QueryParam("priority"); p != "" {
		if !model.ValidIssuePriority(p) {
			return fail(c, http.StatusBadRequest, "unknown issue priority")
		}
		f.Priority = p
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	issues, err := h.Issues.ListByUser(ctx, uid, f)
	if err != nil {
		log.Printf("issues list: %v", err)
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	out := make([]issueResp, 0, len(issues))
	for _, i := range issues {
		out = append(out, toIssueResp(i))
	}
	return success(c, http.StatusOK, echo.Map{"issues": out})
}

// Create validates and stores a new issue, then notifies the owner by email
// without blocking the response.
func (h *IssueHandler) Create(c echo.Context) error {
	uid := middleware.UserID(c)
	email := middleware.Email(c)

	var req createIssueReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)

	if !model.ValidIssueType(req.Type) {
		return fail(c, http.StatusBadRequest, "type must be CLOUD_SECURITY, RETEAM_ASSESSMENT, or VAPT")
	}
	if req.Title == "" || len(req.Title) > 200 {
		return fail(c, http.StatusBadRequest, "title required (max 200 characters)")
	}
	if req.Description == "" || len(req.Description) > 5000 {
		return fail(c, http.StatusBadRequest, "description required (max 5000 characters)")
	}
	if req.Status == "" {
		req.Status = model.IssueStatusOpen
	} else if !model.ValidIssueStatus(req.Status) {
		return fail(c, http.StatusBadRequest, "unknown issue status")
	}
	if req.Priority == "" {
		req.Priority = model.IssuePriorityMedium
	} else if !model.ValidIssuePriority(req.Priority) {
		return fail(c, http.StatusBadRequest, "unknown issue priority")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	issue, err := h.Issues.Create(ctx, model.Issue{
		UserID:      uid,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		log.Printf("issue create: %v", err)
		return fail(c, http.StatusInternalServerError, "create issue failed")
	}

	if h.Notifier != nil && email != "" {
		go func(email string, issue model.Issue) {
			if err := h.Notifier.IssueCreated(context.Background(), email, issue); err != nil {
				log.Printf("issue created notification failed for %s: %v", email, err)
			}
		}(email, issue)
	}

	return success(c, http.StatusCreated, echo.Map{"issue": toIssueResp(issue)})
}

// Get returns a single issue owned by the current user.
func (h *IssueHandler) Get(c echo.Context) error {
	uid := middleware.UserID(c)
	id, err := issueID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid issue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	issue, err := h.Issues.GetByIDAndUser(ctx, id, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "issue not found")
		}
		log.Printf("issue get: %v", err)
		return fail(c, http.StatusInternalServerError, "query failed")
	}
	return success(c, http.StatusOK, echo.Map{"issue": toIssueResp(issue)})
}

// Update applies a partial update to an issue owned by the current user.
func (h *IssueHandler) Update(c echo.Context) error {
	uid := middleware.UserID(c)
	id, err := issueID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid issue id")
	}

	var req updateIssueReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Type != nil && !model.ValidIssueType(*req.Type) {
		return fail(c, http.StatusBadRequest, "unknown issue type")
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" || len(t) > 200 {
			return fail(c, http.StatusBadRequest, "title required (max 200 characters)")
		}
		req.Title = &t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		if d == "" || len(d) > 5000 {
			return fail(c, http.StatusBadRequest, "description required (max 5000 characters)")
		}
		req.Description = &d
	}
	if req.Status != nil && !model.ValidIssueStatus(*req.Status) {
		return fail(c, http.StatusBadRequest, "unknown issue status")
	}
	if req.Priority != nil && !model.ValidIssuePriority(*req.Priority) {
		return fail(c, http.StatusBadRequest, "unknown issue priority")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	issue, err := h.Issues.Update(ctx, id, uid, repository.IssuePatch{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "issue not found")
		}
		log.Printf("issue update: %v", err)
		return fail(c, http.StatusInternalServerError, "update issue failed")
	}
	return success(c, http.StatusOK, echo.Map{"issue": toIssueResp(issue)})
}

// Delete removes an issue owned by the current user.
func (h *IssueHandler) Delete(c echo.Context) error {
	uid := middleware.UserID(c)
	id, err := issueID(c)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid issue id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Issues.Delete(ctx, id, uid); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, http.StatusNotFound, "issue not found")
		}
		log.Printf("issue delete: %v", err)
		return fail(c, http.StatusInternalServerError, "delete issue failed")
	}
	return message(c, http.StatusOK, "issue deleted successfully")
}

func issueID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}
