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

const defaultDeletedBy = "admin"

type SurveyHandler struct {
	s *service.SurveyService
	l *zap.Logger
}

func NewSurveyHandler(s *service.SurveyService, l *zap.Logger) *SurveyHandler {
	return &SurveyHandler{
		s: s,
		l: l,
	}
}

type createSurveyRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Questions   []models.Question     `json:"questions"`
	Settings    models.SurveySettings `json:"settings"`
	Password    string                `json:"password"`
}

type submitRequest struct {
	Answers   []models.Answer `json:"answers"`
	StartedAt time.Time       `json:"started_at"`
}

type questionsRequest struct {
	Questions []models.Question `json:"questions"`
}

type updateSurveyRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Settings    *models.SurveySettings `json:"settings"`
}

func sanitizeQuestions(questions []models.Question) []models.Question {
	out := make([]models.Question, len(questions))
	for i, q := range questions {
		q.Title = sanitize.Text(q.Title)
		q.Description = sanitize.Text(q.Description)
		choices := make([]models.Choice, len(q.Choices))
		for j, ch := range q.Choices {
			choices[j] = models.Choice{ID: ch.ID, Label: sanitize.Text(ch.Label)}
		}
		if q.Choices != nil {
			q.Choices = choices
		}
		out[i] = q
	}
	return out
}

func (h *SurveyHandler) Create(c *gin.Context) {
	var req createSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	h.l.Debug("data for creating new survey",
		zap.String("title", req.Title),
		zap.Int("questions", len(req.Questions)))
	survey, token, err := h.s.Create(c.Request.Context(), service.CreateSurveyInput{
		Title:       sanitize.Text(req.Title),
		Description: sanitize.Text(req.Description),
		Questions:   sanitizeQuestions(req.Questions),
		Settings:    req.Settings,
		Password:    req.Password,
	})
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"survey": survey, "admin_token": token})
}

func (h *SurveyHandler) List(c *gin.Context) {
	status := models.SurveyStatus(c.DefaultQuery("status", string(models.SurveyOpen)))
	switch status {
	case models.SurveyDraft, models.SurveyOpen, models.SurveyClosed:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status", "kind": models.KindValidation})
		return
	}
	surveys, err := h.s.List(c.Request.Context(), status)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"surveys": surveys})
}

func (h *SurveyHandler) View(c *gin.Context) {
	survey, err := h.s.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	for i := range req.Answers {
		req.Answers[i].Text = sanitize.Text(req.Answers[i].Text)
	}
	h.l.Debug("data for submitting response",
		zap.String("survey_id", c.Param("id")),
		zap.Int("answers", len(req.Answers)))
	response, err := h.s.Submit(c.Request.Context(), c.Param("id"), c.ClientIP(), req.Answers, req.StartedAt)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (h *SurveyHandler) ResponseByCode(c *gin.Context) {
	response, err := h.s.ResponseByCode(c.Request.Context(), c.Param("id"), c.Param("code"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *SurveyHandler) Login(c *gin.Context) {
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

func (h *SurveyHandler) Logout(c *gin.Context) {
	if err := h.s.Logout(c.Request.Context(), c.GetString(adminTokenKey)); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SurveyHandler) AdminView(c *gin.Context) {
	survey, err := h.s.AdminView(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) ReplaceQuestions(c *gin.Context) {
	var req questionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	survey, err := h.s.ReplaceQuestions(c.Request.Context(), c.Param("id"), sanitizeQuestions(req.Questions))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) Update(c *gin.Context) {
	var req updateSurveyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	u := models.SurveyUpdate{Settings: req.Settings}
	if req.Title != nil {
		title := sanitize.Text(*req.Title)
		u.Title = &title
	}
	if req.Description != nil {
		description := sanitize.Text(*req.Description)
		u.Description = &description
	}
	survey, err := h.s.Update(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) Publish(c *gin.Context) {
	survey, err := h.s.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) Close(c *gin.Context) {
	survey, err := h.s.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) SetHidden(c *gin.Context) {
	var req hideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err)
		return
	}
	survey, err := h.s.SetHidden(c.Request.Context(), c.Param("id"), req.Hidden)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, survey)
}

func (h *SurveyHandler) Delete(c *gin.Context) {
	if err := h.s.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SurveyHandler) ListResponses(c *gin.Context) {
	responses, err := h.s.ListResponses(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"responses": responses})
}

func (h *SurveyHandler) DeleteResponse(c *gin.Context) {
	deletedBy := sanitize.Text(c.DefaultQuery("deleted_by", defaultDeletedBy))
	if deletedBy == "" {
		deletedBy = defaultDeletedBy
	}
	err := h.s.DeleteResponse(c.Request.Context(), c.Param("id"), c.Param("responseID"), deletedBy)
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SurveyHandler) Stats(c *gin.Context) {
	stats, err := h.s.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, h.l, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *SurveyHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.s.ExportResponses(c.Request.Context(), c.Param("id"), &buf); err != nil {
		abortWithError(c, h.l, err)
		return
	}
	sendCSV(c, service.ExportName("survey", c.Param("id"), time.Now()), buf.Bytes())
}
