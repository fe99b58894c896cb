// Campaign endpoints:
//   - POST /campaigns               (create a blast for a segment)
//   - GET  /campaigns/{id}/status   (recipient counts and recent failures)
//   - POST /campaigns/{id}/launch   (enqueue queued recipients)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

// CreateCampaignRequest is the JSON payload for POST /campaigns.
type CreateCampaignRequest = services.BlastInput

// PartialCampaignResponse is returned when recipient insertion stopped part
// way. The campaign exists, is marked failed, and keeps Committed recipients.
type PartialCampaignResponse struct {
	ErrorResponse
	CampaignID string `json:"campaign_id"`
	Committed  int    `json:"committed"`
}

// CreateCampaign godoc
// @ID          createCampaign
// @Summary     Create a campaign blast
// @Description Validates the template (must be APPROVED) and inserts one recipient per opted-in contact of the segment, in batches.
// @Tags        Campaigns
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       body            body    handlers.CreateCampaignRequest  true  "Blast"
// @Success     201  {object}  services.BlastResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid language, date or segment"
// @Failure     422  {object}  handlers.ErrorResponse  "Template not approved"
// @Failure     500  {object}  handlers.PartialCampaignResponse  "Insertion stopped part way"
// @Router      /campaigns [post]
func (h *Handlers) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TemplateName == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "template_name required")
		return
	}
	res, err := h.campaigns.CreateBlast(c.Request.Context(), workspace(c), req)
	var pie *services.PartialInsertError
	if errors.As(err, &pie) {
		status, code, msg := mapError(err)
		c.Set(middleware.ErrorCodeKey, code)
		middleware.LoggerFrom(c).Error().Err(err).
			Str("campaign_id", pie.CampaignID).
			Int("committed", pie.Committed).
			Msg("campaign recipients partially inserted")
		c.AbortWithStatusJSON(status, PartialCampaignResponse{
			ErrorResponse: ErrorResponse{RequestID: c.Writer.Header().Get("X-Request-ID"), Code: code, Message: msg},
			CampaignID:    pie.CampaignID,
			Committed:     pie.Committed,
		})
		return
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// CampaignStatus godoc
// @ID          campaignStatus
// @Summary     Campaign status
// @Tags        Campaigns
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Campaign ID"
// @Success     200  {object}  services.CampaignStatus
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /campaigns/{id}/status [get]
func (h *Handlers) CampaignStatus(c *gin.Context) {
	st, err := h.campaigns.Status(c.Request.Context(), workspace(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// LaunchCampaign godoc
// @ID          launchCampaign
// @Summary     Launch a campaign
// @Description Moves a queued campaign to running and enqueues one outbox row per queued recipient. Relaunching a running campaign picks up recipients still queued.
// @Tags        Campaigns
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Campaign ID"
// @Success     200  {object}  services.LaunchResult
// @Failure     403  {object}  handlers.ErrorResponse  "Sending not allowed"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Not launchable"
// @Router      /campaigns/{id}/launch [post]
func (h *Handlers) LaunchCampaign(c *gin.Context) {
	res, err := h.campaigns.Launch(c.Request.Context(), workspace(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
