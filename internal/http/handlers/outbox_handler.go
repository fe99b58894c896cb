// Outbox endpoints:
//   - POST /outbox               (enqueue; honors Idempotency-Key)
//   - GET  /outbox               (list, optional ?status=)
//   - POST /outbox/{id}/drain    (attempt delivery now)
//   - POST /outbox/{id}/requeue  (failed -> queued while attempts remain)
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

// EnqueueRequest is the JSON payload for POST /outbox.
type EnqueueRequest = services.EnqueueInput

// ListOutboxResponse wraps a page of outbox rows.
type ListOutboxResponse struct {
	Messages   []domain.OutboxMessage `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

// DrainResponse reports one delivery attempt.
type DrainResponse struct {
	Outbox *domain.OutboxMessage `json:"outbox"`
	// Outcome is sent, retry_scheduled or failed.
	Outcome string `json:"outcome" example:"retry_scheduled"`
	// Error is the provider failure message, if any.
	Error string `json:"error,omitempty"`
}

// Enqueue godoc
// @ID          enqueueOutbox
// @Summary     Enqueue an outbound message
// @Description Durably records a send request. With an Idempotency-Key, a retry within 24h returns the originally created row with Idempotent-Replay: true.
// @Tags        Outbox
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID   header  string  true   "Workspace ID"
// @Param       Idempotency-Key  header  string  false  "Client retry key"
// @Param       body             body    handlers.EnqueueRequest  true  "Send request"
// @Success     201  {object}  domain.OutboxMessage
// @Success     200  {object}  domain.OutboxMessage  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Sending not allowed"
// @Router      /outbox [post]
func (h *Handlers) Enqueue(c *gin.Context) {
	ctx := c.Request.Context()
	ws := workspace(c)
	key, hasKey := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)

	if hasKey && h.idem != nil {
		id, found, err := h.idem.Lookup(ctx, ws, scope, key, time.Now().UTC())
		if err != nil {
			failErr(c, err)
			return
		}
		if found {
			m, err := h.outbox.Get(ctx, ws, id)
			if err == nil {
				c.Header(middleware.HeaderIdempotentReplay, "true")
				ok(c, http.StatusOK, m)
				return
			}
			if !errors.Is(err, services.ErrOutboxNotFound) {
				failErr(c, err)
				return
			}
		}
	}

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.outbox.Enqueue(ctx, ws, req)
	if err != nil {
		failErr(c, err)
		return
	}
	if hasKey && h.idem != nil {
		if err := h.idem.Remember(ctx, ws, scope, key, m.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("outbox_id", m.ID).Msg("idempotency record not saved")
		}
	}
	ok(c, http.StatusCreated, m)
}

// ListOutbox godoc
// @ID          listOutbox
// @Summary     List outbox rows (paginated)
// @Tags        Outbox
// @Produce     json
// @Param       X-Workspace-ID  header  string  true   "Workspace ID"
// @Param       status          query   string  false  "queued | processing | sent | failed"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListOutboxResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /outbox [get]
func (h *Handlers) ListOutbox(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", domain.StatusQueued, domain.StatusProcessing, domain.StatusSent, domain.StatusFailed:
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown status filter")
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.outbox.List(c.Request.Context(), workspace(c), status, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListOutboxResponse{Messages: items, Pagination: paginate(page, pageSize, total)})
}

// Drain godoc
// @ID          drainOutbox
// @Summary     Attempt delivery of one outbox row
// @Description Claims the row and calls the provider. A provider failure is a normal outcome (200) with the retry or terminal state in the body.
// @Tags        Outbox
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Outbox ID"
// @Success     200  {object}  handlers.DrainResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Already claimed or not queued"
// @Router      /outbox/{id}/drain [post]
func (h *Handlers) Drain(c *gin.Context) {
	m, err := h.outbox.DrainOne(c.Request.Context(), workspace(c), c.Param("id"))
	switch {
	case err == nil:
		ok(c, http.StatusOK, DrainResponse{Outbox: m, Outcome: "sent"})
	case m != nil && errors.Is(err, services.ErrMaxAttemptsExceeded):
		ok(c, http.StatusOK, DrainResponse{Outbox: m, Outcome: "failed", Error: lastError(m)})
	case m != nil && errors.Is(err, services.ErrProviderSendFailed):
		ok(c, http.StatusOK, DrainResponse{Outbox: m, Outcome: "retry_scheduled", Error: lastError(m)})
	default:
		failErr(c, err)
	}
}

// Requeue godoc
// @ID          requeueOutbox
// @Summary     Requeue a failed outbox row
// @Description Allowed only while attempts < the workspace max attempts, e.g. after raising the ceiling.
// @Tags        Outbox
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Outbox ID"
// @Success     200  {object}  domain.OutboxMessage
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Not failed, or max attempts exceeded"
// @Router      /outbox/{id}/requeue [post]
func (h *Handlers) Requeue(c *gin.Context) {
	m, err := h.outbox.Requeue(c.Request.Context(), workspace(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

func lastError(m *domain.OutboxMessage) string {
	if m.LastError == nil {
		return ""
	}
	return *m.LastError
}
