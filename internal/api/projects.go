package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"techpaint/internal/content"
	"techpaint/internal/models"
)

const (
	maxTitleLength        = 200
	maxDescriptionLength  = 10000
	maxTechnologiesLength = 500
	maxCommentLength      = 2000
)

func projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid project id")
		return 0, false
	}
	return id, true
}

// render fills the sanitized HTML rendering of the markdown description.
func render(p *models.Project) {
	html, err := content.RenderMarkdown(p.Description)
	if err != nil {
		slog.Warn("failed to render project description", "project_id", p.ID, "error", err)
		html = content.Sanitize(p.Description)
	}
	p.DescriptionHTML = html
}

func renderComment(c *models.Comment) {
	c.TextHTML = content.Sanitize(c.Text)
}

func (a *API) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	projects, err := a.store.ListProjects(user.ID)
	if err != nil {
		slog.Error("failed to list projects", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	for i := range projects {
		render(&projects[i])
	}
	writeJSON(w, http.StatusOK, models.ProjectsResponse{APIResponse: ok(""), Projects: projects})
}

func (a *API) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req models.CreateProjectRequest
	if !decode(w, r, &req) {
		return
	}

	p := models.Project{
		UserID:       user.ID,
		Title:        content.Clean(req.Title, maxTitleLength),
		Description:  content.Clean(req.Description, maxDescriptionLength),
		GitHubURL:    content.Clean(req.GitHubURL, maxTitleLength),
		Technologies: content.Clean(req.Technologies, maxTechnologiesLength),
		CreatedAt:    a.now().UnixMilli(),
	}
	if p.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if err := content.ValidateRepoURL(p.GitHubURL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.store.CreateProject(p)
	if err != nil {
		slog.Error("failed to create project", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}
	render(&p)
	slog.Info("project created", "project_id", p.ID, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, models.ProjectResponse{APIResponse: ok("Project created"), Project: p})
}

func (a *API) VoteHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, valid := projectID(w, r)
	if !valid {
		return
	}
	var req models.VoteRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Vote type must be like or dislike")
		return
	}

	result, err := a.store.Vote(id, user.ID, req.Type)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found")
			return
		}
		slog.Error("failed to vote", "project_id", id, "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to vote")
		return
	}
	writeJSON(w, http.StatusOK, models.VoteResponse{APIResponse: ok(""), VoteResult: result})
}

func (a *API) CommentsHandler(w http.ResponseWriter, r *http.Request) {
	id, valid := projectID(w, r)
	if !valid {
		return
	}
	comments, err := a.store.ListComments(id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found")
			return
		}
		slog.Error("failed to list comments", "project_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list comments")
		return
	}
	for i := range comments {
		renderComment(&comments[i])
	}
	writeJSON(w, http.StatusOK, models.CommentsResponse{APIResponse: ok(""), Comments: comments})
}

func (a *API) AddCommentHandler(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id, valid := projectID(w, r)
	if !valid {
		return
	}
	var req models.CommentRequest
	if !decode(w, r, &req) {
		return
	}
	text := content.Clean(req.Text, maxCommentLength)
	if text == "" {
		writeError(w, http.StatusBadRequest, content.ErrMessageEmpty.Error())
		return
	}

	comment, err := a.store.AddComment(models.Comment{
		ProjectID: id,
		UserID:    user.ID,
		Text:      text,
		CreatedAt: a.now().UnixMilli(),
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Project not found")
			return
		}
		slog.Error("failed to add comment", "project_id", id, "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to add comment")
		return
	}
	renderComment(&comment)
	writeJSON(w, http.StatusCreated, models.CommentResponse{APIResponse: ok("Comment added"), Comment: comment})
}
