package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaam8/surbate/internal/models"
	"github.com/jaam8/surbate/internal/service"
	"github.com/jaam8/surbate/pkg/sanitize"
	"go.uber.org/zap"
)

type PollHandler struct {
	s *service.PollService
	l *zap.Logger
}

func NewPollHandler(s *service.PollService, l *zap.Logger) *PollHandler {
	return &PollHandler{
		s: s,
		l: l,
	}
}

type createPollRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Options     []string            `json:"options"`
	StartAt     time.Time           `json:"start_at"`
	EndAt       time.Time           `json:"end_at" binding:"required"`
	Settings    models.PollSettings `json:"settings"`
	Password    string              `json:"password"`
}

type voteRequest struct {
	OptionIDs   []string `json:"option_ids"`
	Nickname    string   `json:"nickname"`
	IsAnonymous bool     `json:"is_anonymous"`
}

type opinionRequest struct {
	Nickname    string `json:"nickname"`
	OptionID    string `json:"option_id"`
	Content     string `json:"content"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type hideRequest struct {
	Hidden bool `json:"hidden"`
}

type updatePollRequest struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	EndAt       *time.Time           `json:"end_at"`
	Settings    *models.PollSettings `json:"settings"`
}

func (h *PollHandler) Create(c *gin.Context) {
	var req createPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	h.l.Debug("data for creating new poll",
		zap.String("title", req.Title),
		zap.Strings("options", req.Options),
		zap.Time("start_at", req.StartAt),
		zap.Time("end_at", req.EndAt))
	poll, token, err := h.s.Create(c.Request.Context(), service.CreatePollInput{
		Title:       sanitize.Text(req.Title),
		Description: sanitize.Text(req.Description),
		Options:     sanitize.Texts(req.Options),
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		Settings:    req.Settings,
		Password:    req.Password,
	})
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"poll": poll, "admin_token": token})
}

func (h *PollHandler) List(c *gin.Context) {
	status := models.PollStatus(c.DefaultQuery("status", string(models.PollActive)))
	switch status {
	case models.PollScheduled, models.PollActive, models.PollEnded:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status", "kind": models.KindValidation})
		return
	}
	polls, err := h.s.List(c.Request.Context(), status)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"polls": polls})
}

func (h *PollHandler) View(c *gin.Context) {
	poll, err := h.s.View(c.Request.Context(), c.Param("id"), c.ClientIP())
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) CanVote(c *gin.Context) {
	ok, err := h.s.CanVote(c.Request.Context(), c.Param("id"), c.ClientIP())
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_vote": ok})
}

func (h *PollHandler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	h.l.Debug("data for voting",
		zap.String("poll_id", c.Param("id")),
		zap.Strings("option_ids", req.OptionIDs))
	poll, err := h.s.CastVote(c.Request.Context(), c.Param("id"), c.ClientIP(), req.OptionIDs, models.VoterInfo{
		Nickname:    sanitize.Text(req.Nickname),
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) AddOpinion(c *gin.Context) {
	var req opinionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	opinion, err := h.s.AddOpinion(c.Request.Context(), c.Param("id"), c.ClientIP(), models.OpinionInput{
		Nickname:    sanitize.Text(req.Nickname),
		OptionID:    req.OptionID,
		Content:     sanitize.Text(req.Content),
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusCreated, opinion)
}

func (h *PollHandler) Results(c *gin.Context) {
	results, err := h.s.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"visible": results != nil, "results": results})
}

func (h *PollHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	token, err := h.s.Login(c.Request.Context(), c.Param("id"), req.Password)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admin_token": token})
}

func (h *PollHandler) Logout(c *gin.Context) {
	if err := h.s.Logout(c.Request.Context(), c.GetString(adminTokenKey)); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PollHandler) AdminView(c *gin.Context) {
	poll, err := h.s.AdminView(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) Update(c *gin.Context) {
	var req updatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	u := models.PollUpdate{EndAt: req.EndAt, Settings: req.Settings}
	if req.Title != nil {
		title := sanitize.Text(*req.Title)
		u.Title = &title
	}
	if req.Description != nil {
		description := sanitize.Text(*req.Description)
		u.Description = &description
	}
	poll, err := h.s.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) SetHidden(c *gin.Context) {
	var req hideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	poll, err := h.s.SetHidden(c.Request.Context(), c.Param("id"), req.Hidden)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) Delete(c *gin.Context) {
	if err := h.s.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PollHandler) DeleteOpinion(c *gin.Context) {
	if err := h.s.DeleteOpinion(c.Request.Context(), c.Param("id"), c.Param("opinionID")); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PollHandler) End(c *gin.Context) {
	poll, err := h.s.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

func (h *PollHandler) Stats(c *gin.Context) {
	stats, err := h.s.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *PollHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.s.ExportVotes(c.Request.Context(), c.Param("id"), &buf); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	sendCSV(c, service.ExportName("poll", c.Param("id"), time.Now()), buf.Bytes())
}

func sendCSV(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}
