package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/studyflow/backend/internal/study"
	"github.com/gin-gonic/gin"
)

type subjectRequestPayload struct {
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	TotalTopics    int     `json:"totalTopics"`
	CoveredTopics  int     `json:"coveredTopics"`
	GoogleDriveURL *string `json:"googleDriveUrl"`
	StudyHours     int     `json:"studyHours"`
	WeakAreas      *string `json:"weakAreas"`
}

type examRequestPayload struct {
	SubjectID      *string   `json:"subjectId"`
	Name           string    `json:"name"`
	Date           time.Time `json:"date"`
	Confidence     *int      `json:"confidence"`
	Weight         *int      `json:"weight"`
	GoogleDriveURL *string   `json:"googleDriveUrl"`
}

type taskRequestPayload struct {
	SubjectID        *string        `json:"subjectId"`
	Title            string         `json:"title"`
	Description      *string        `json:"description"`
	Priority         study.Priority `json:"priority"`
	Status           study.Status   `json:"status"`
	DueDate          *time.Time     `json:"dueDate"`
	EstimatedMinutes *int           `json:"estimatedMinutes"`
	Tags             []string       `json:"tags"`
	Order            int            `json:"order"`
}

func (h *httpHandler) handleListSubjects(c *gin.Context) {
	subjects, err := h.study.ListSubjects(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (h *httpHandler) handleGetSubject(c *gin.Context) {
	subject, err := h.study.GetSubject(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

func (h *httpHandler) handleCreateSubject(c *gin.Context) {
	var request subjectRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	subject, err := h.study.CreateSubject(c.Request.Context(), actorFrom(c), study.SubjectInput{
		Name:           request.Name,
		Color:          request.Color,
		TotalTopics:    request.TotalTopics,
		CoveredTopics:  request.CoveredTopics,
		GoogleDriveURL: request.GoogleDriveURL,
		StudyHours:     request.StudyHours,
		WeakAreas:      request.WeakAreas,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subject)
}

func (h *httpHandler) handleUpdateSubject(c *gin.Context) {
	var update study.SubjectUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	subject, err := h.study.UpdateSubject(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subject)
}

func (h *httpHandler) handleDeleteSubject(c *gin.Context) {
	if err := h.study.DeleteSubject(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleListExams(c *gin.Context) {
	exams, err := h.study.ListExams(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exams)
}

func (h *httpHandler) handleCreateExam(c *gin.Context) {
	var request examRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	exam, err := h.study.CreateExam(c.Request.Context(), actorFrom(c), study.ExamInput{
		SubjectID:      request.SubjectID,
		Name:           request.Name,
		Date:           request.Date,
		Confidence:     request.Confidence,
		Weight:         request.Weight,
		GoogleDriveURL: request.GoogleDriveURL,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exam)
}

func (h *httpHandler) handleUpdateExam(c *gin.Context) {
	var update study.ExamUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	exam, err := h.study.UpdateExam(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, exam)
}

func (h *httpHandler) handleDeleteExam(c *gin.Context) {
	if err := h.study.DeleteExam(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}

func (h *httpHandler) handleListTasks(c *gin.Context) {
	filter := study.TaskFilter{
		Status:    study.Status(strings.TrimSpace(c.Query("status"))),
		SubjectID: strings.TrimSpace(c.Query("subjectId")),
	}
	tasks, err := h.study.ListTasks(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	var request taskRequestPayload
	if err := bindJSON(c, &request); err != nil {
		h.writeError(c, err)
		return
	}
	outcome, err := h.study.CreateTask(c.Request.Context(), actorFrom(c), study.TaskInput{
		SubjectID:        request.SubjectID,
		Title:            request.Title,
		Description:      request.Description,
		Priority:         request.Priority,
		Status:           request.Status,
		DueDate:          request.DueDate,
		EstimatedMinutes: request.EstimatedMinutes,
		Tags:             request.Tags,
		Order:            request.Order,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	var update study.TaskUpdate
	if err := bindUpdate(c, &update); err != nil {
		h.writeError(c, err)
		return
	}
	outcome, err := h.study.UpdateTask(c.Request.Context(), actorFrom(c), c.Param("id"), update)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *httpHandler) handleDeleteTask(c *gin.Context) {
	if err := h.study.DeleteTask(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	respondSuccess(c)
}
