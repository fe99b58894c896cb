// Intake endpoints:
//   - POST /events   (normalized event from a trusted collaborator)
//   - GET  /webhook  (provider subscription handshake)
//   - POST /webhook  (provider delivery: messages and status receipts)
package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

// WebhookResponse summarizes a processed delivery.
type WebhookResponse struct {
	Batches int                  `json:"batches"`
	Stats   services.IntakeStats `json:"stats"`
	// Unrouted counts batches whose phone-number id no workspace owns.
	Unrouted int `json:"unrouted"`
}

// IngestEvent godoc
// @ID          ingestEvent
// @Summary     Ingest a normalized event
// @Description Validates the event against the event schema and materializes it. Replays of an already-processed event id return 200 with duplicate=true.
// @Tags        Intake
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID (must match workspaceId)"
// @Param       body            body    domain.Event  true  "Normalized event"
// @Success     201  {object}  services.MaterializeResult  "Created"
// @Success     200  {object}  services.MaterializeResult  "Duplicate"
// @Failure     403  {object}  handlers.ErrorResponse  "Workspace mismatch"
// @Failure     422  {object}  handlers.ErrorResponse  "Schema violation"
// @Router      /events [post]
func (h *Handlers) IngestEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	ev, err := h.decoder.Decode(body)
	if err != nil {
		failErr(c, err)
		return
	}
	if ev.WorkspaceID != workspace(c) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "event belongs to another workspace")
		return
	}
	res, err := h.intake.Materialize(c.Request.Context(), ev)
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Duplicate {
		ok(c, http.StatusOK, res)
		return
	}
	ok(c, http.StatusCreated, res)
}

// VerifyWebhook godoc
// @ID          verifyWebhook
// @Summary     Webhook subscription handshake
// @Description Echoes hub.challenge when hub.mode is subscribe and hub.verify_token matches.
// @Tags        Intake
// @Produce     plain
// @Param       hub.mode          query  string  true  "subscribe"
// @Param       hub.verify_token  query  string  true  "Shared verify token"
// @Param       hub.challenge     query  string  true  "Challenge to echo"
// @Success     200  {string}  string  "challenge"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /webhook [get]
func (h *Handlers) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	if h.verifyToken == "" || mode != "subscribe" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "verification failed")
		return
	}
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// ReceiveWebhook godoc
// @ID          receiveWebhook
// @Summary     Receive a provider webhook delivery
// @Description Parses Cloud API payloads, resolves each batch's workspace by phone-number id and materializes messages and delivery receipts. Batches for unknown phone numbers are acknowledged and dropped; storage failures return 500 so the provider redelivers.
// @Tags        Intake
// @Accept      json
// @Produce     json
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /webhook [post]
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	batches, err := webhook.Parse(body)
	if err != nil {
		failErr(c, err)
		return
	}

	resp := WebhookResponse{Batches: len(batches)}
	for _, b := range batches {
		st, err := h.intake.IngestBatch(c.Request.Context(), b)
		resp.Stats.New += st.New
		resp.Stats.Duplicate += st.Duplicate
		resp.Stats.Rejected += st.Rejected
		resp.Stats.Receipts += st.Receipts
		if errors.Is(err, services.ErrUnknownWorkspace) {
			resp.Unrouted++
			middleware.LoggerFrom(c).Warn().Str("phone_number_id", b.PhoneNumberID).Msg("webhook for unknown phone number")
			continue
		}
		if err != nil {
			failErr(c, err)
			return
		}
	}
	ok(c, http.StatusOK, resp)
}
