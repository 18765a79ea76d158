package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type meetingHandler struct {
	meetings  *app.MeetingService
	events    *app.MeetingEvents
	heartbeat time.Duration
}

type createMeetingRequest struct {
	AppointmentID string     `json:"appointmentId" binding:"required"`
	DoctorID      string     `json:"doctorId" binding:"required"`
	PatientID     string     `json:"patientId" binding:"required"`
	ScheduledTime *time.Time `json:"scheduledTime"`
}

type updateStatusRequest struct {
	Status    *string    `json:"status"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

type addParticipantRequest struct {
	UserID   string `json:"userId" binding:"required"`
	UserType string `json:"userType" binding:"required"`
}

func ok(c *gin.Context, status int, data any, msg string) {
	body := gin.H{"success": true, "data": data}
	if msg != "" {
		body["message"] = msg
	}
	c.JSON(status, body)
}

func fail(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"success": false, "message": msg}
	if err != nil && status >= http.StatusInternalServerError {
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// failFor maps service errors onto the response envelope.
func failFor(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		fail(c, http.StatusNotFound, "Meeting not found", nil)
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, err.Error(), nil)
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("meeting request failed")
		fail(c, http.StatusInternalServerError, "Failed to "+op, err)
	}
}

func (h *meetingHandler) create(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Missing required fields: appointmentId, doctorId, patientId", nil)
		return
	}
	in := app.CreateMeetingInput{
		AppointmentID: req.AppointmentID,
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
	}
	if req.ScheduledTime != nil {
		in.ScheduledTime = *req.ScheduledTime
	}
	m, created, err := h.meetings.CreateMeeting(c.Request.Context(), in)
	if err != nil {
		failFor(c, "create meeting", err)
		return
	}
	if !created {
		ok(c, http.StatusOK, m, "Meeting already exists")
		return
	}
	ok(c, http.StatusCreated, m, "Meeting created successfully")
}

func (h *meetingHandler) get(c *gin.Context) {
	m, err := h.meetings.GetMeeting(c.Request.Context(), domain.RoomID(c.Param("roomId")))
	if err != nil {
		failFor(c, "get meeting", err)
		return
	}
	ok(c, http.StatusOK, m, "")
}

func (h *meetingHandler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	u := domain.StatusUpdate{StartTime: req.StartTime, EndTime: req.EndTime}
	if req.Status != nil {
		st, err := domain.ParseMeetingStatus(*req.Status)
		if err != nil {
			fail(c, http.StatusBadRequest, "Invalid status: "+*req.Status, nil)
			return
		}
		u.Status = &st
	}
	m, err := h.meetings.UpdateStatus(c.Request.Context(), domain.RoomID(c.Param("roomId")), u)
	if err != nil {
		failFor(c, "update meeting status", err)
		return
	}
	ok(c, http.StatusOK, m, "")
}

func (h *meetingHandler) addParticipant(c *gin.Context) {
	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Missing required fields: userId, userType", nil)
		return
	}
	m, err := h.meetings.AddParticipant(c.Request.Context(), domain.RoomID(c.Param("roomId")), req.UserID, domain.UserType(req.UserType))
	if err != nil {
		failFor(c, "add participant", err)
		return
	}
	ok(c, http.StatusOK, m, "")
}

// stream pushes the current meeting and then every change as server-sent events.
func (h *meetingHandler) stream(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	updates, cancel := h.events.Subscribe(roomID)
	defer cancel()

	m, err := h.meetings.GetMeeting(c.Request.Context(), roomID)
	if err != nil {
		failFor(c, "get meeting", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	write := func(ev sse.Event) bool {
		if err := sse.Encode(c.Writer, ev); err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("sse write")
			return false
		}
		c.Writer.Flush()
		return true
	}

	if !write(sse.Event{Event: "meeting", Data: m}) {
		return
	}
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case m, open := <-updates:
			if !open || !write(sse.Event{Event: "meeting", Data: m}) {
				return
			}
		case <-heartbeat.C:
			if !write(sse.Event{Event: "keepalive", Data: time.Now().Format(time.RFC3339)}) {
				return
			}
		}
	}
}
