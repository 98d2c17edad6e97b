package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agriagent/apps/backend/internal/chat"
)

const runLogWriteTimeout = 3 * time.Second

type chatLocationPayload struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type chatRequestPayload struct {
	Message  string               `json:"message"`
	CropName string               `json:"crop_name"`
	Location *chatLocationPayload `json:"location"`
	Language string               `json:"language"`
	History  []chat.ChatTurn      `json:"history"`
}

type detectLanguageRequest struct {
	Text string `json:"text"`
}

// toChatRequest drops a location unless both coordinates are present.
func (p chatRequestPayload) toChatRequest() chat.ChatRequest {
	req := chat.ChatRequest{
		Message:  p.Message,
		CropName: p.CropName,
		Language: p.Language,
		History:  p.History,
	}
	if p.Location != nil && p.Location.Lat != nil && p.Location.Lng != nil {
		req.Location = &chat.Location{Lat: *p.Location.Lat, Lng: *p.Location.Lng}
	}
	return req
}

func (a *App) chat(c *gin.Context) {
	pipeline, err := a.pipeline()
	if err != nil {
		writeChatError(c, err)
		return
	}

	var payload chatRequestPayload
	if !mustJSON(c, &payload) {
		return
	}

	requestID := requestIDFromContext(c)
	resp, trace, err := pipeline.Process(c.Request.Context(), payload.toChatRequest())
	if err != nil {
		log.Printf("chat request failed request_id=%s stage=%s err=%v", requestID, trace.Last(), err)
		writeChatError(c, err)
		a.recordRun(c, payload.Language, trace, chatOutcome(err))
		return
	}

	c.JSON(http.StatusOK, resp)
	trace.Advance(c.Request.Context(), chat.StageDelivered)
	if len(trace.Degraded) > 0 {
		log.Printf("chat request degraded request_id=%s language=%s degraded=%v", requestID, trace.Language, trace.Degraded)
	}
	a.recordRun(c, payload.Language, trace, runOutcomeDelivered)
}

func (a *App) detectLanguage(c *gin.Context) {
	pipeline, err := a.pipeline()
	if err != nil {
		writeChatError(c, err)
		return
	}

	var payload detectLanguageRequest
	if !mustJSON(c, &payload) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"language": pipeline.DetectLanguage(c.Request.Context(), payload.Text),
	})
}

// recordRun stores run metadata in the background so the write never delays
// or changes the response. Failures are only logged.
func (a *App) recordRun(c *gin.Context, hint string, trace chat.Trace, outcome string) {
	if a.runLog == nil {
		return
	}
	entry := newRunLogEntry(requestIDFromContext(c), c.GetString(authSubjectKey), hint, trace, outcome)
	parent := context.WithoutCancel(c.Request.Context())

	a.runLogWG.Add(1)
	go func() {
		defer a.runLogWG.Done()
		ctx, cancel := context.WithTimeout(parent, runLogWriteTimeout)
		defer cancel()
		if err := a.runLog.Record(ctx, entry); err != nil {
			log.Printf("run log write failed request_id=%s err=%v", entry.RequestID, err)
		}
	}()
}

// WaitRunLogs blocks until every pending run log write has finished.
func (a *App) WaitRunLogs() {
	a.runLogWG.Wait()
}

func chatOutcome(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return runOutcomeRejected
	case errors.Is(err, chat.ErrCancelled):
		return runOutcomeCancelled
	default:
		return runOutcomeFailed
	}
}

func writeChatError(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, chat.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "No message provided")
	case errors.Is(err, chat.ErrCancelled):
		writeError(c, http.StatusServiceUnavailable, "Request cancelled")
	case errors.Is(err, errPipelineNotReady):
		writeError(c, http.StatusServiceUnavailable, "Chat service is starting up")
	default:
		writeError(c, http.StatusInternalServerError, "An error occurred while processing your request")
	}
}
