// Package services – Campaigns
//
// This file implements Campaign Fan-out. CreateBlast validates the template
// and segment, then streams matching contacts in fixed-size pages and
// inserts one CampaignRecipient per contact, one transaction per page. The
// campaign row is written together with the first page, so a caller that
// gives up before anything commits leaves no trace. A failure after that
// marks the campaign failed and reports how many recipients were committed.
//
// Launch hands queued recipients to the Dispatcher; recipient and campaign
// status then follow the outbox rows they are linked to.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/phone"
	"github.com/tbourn/go-wa-inbox/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCampaignBatch = 500
	recentFailureSample  = 5
)

// Campaigns creates, launches and reports on template blasts.
type Campaigns struct {
	DB         *gorm.DB
	Dispatcher *Dispatcher
	BatchSize  int

	Now func() time.Time
}

// NewCampaigns constructs the campaign service.
func NewCampaigns(db *gorm.DB, d *Dispatcher, batchSize int) *Campaigns {
	if batchSize <= 0 {
		batchSize = defaultCampaignBatch
	}
	return &Campaigns{
		DB:         db,
		Dispatcher: d,
		BatchSize:  batchSize,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Campaigns) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// SegmentInput selects a campaign audience. CreatedAfter accepts RFC 3339
// or a plain YYYY-MM-DD date.
type SegmentInput struct {
	Tag          string `json:"tag,omitempty"`
	CreatedAfter string `json:"created_after,omitempty"`
}

// BlastInput describes a campaign to create.
type BlastInput struct {
	Name         string       `json:"name"`
	TemplateName string       `json:"template_name"`
	Language     string       `json:"language"`
	Segment      SegmentInput `json:"segment"`
}

// BlastResult reports a created campaign.
type BlastResult struct {
	CampaignID     string `json:"campaign_id"`
	RecipientCount int    `json:"recipient_count"`
	Batches        int    `json:"batches"`
	Skipped        int    `json:"skipped"`
}

// CreateBlast creates a campaign and its recipients.
func (s *Campaigns) CreateBlast(ctx context.Context, workspaceID string, in BlastInput) (*BlastResult, error) {
	tr := otel.Tracer("services/Campaigns")
	ctx, span := tr.Start(ctx, "CreateBlast",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("template.name", in.TemplateName),
		),
	)
	defer span.End()

	lang := strings.TrimSpace(in.Language)
	if lang != "" {
		if _, err := language.Parse(lang); err != nil {
			return nil, ErrInvalidLanguage
		}
	}

	tpl, err := repo.GetTemplate(ctx, s.DB, workspaceID, in.TemplateName, lang)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTemplateNotApproved
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(tpl.Status), "APPROVED") {
		return nil, ErrTemplateNotApproved
	}

	seg, err := parseSegment(in.Segment)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = tpl.Name
	}
	camp := &domain.Campaign{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		Name:         name,
		TemplateName: tpl.Name,
		Language:     tpl.Language,
	}
	res := &BlastResult{CampaignID: camp.ID}
	created := false

	l := log.Ctx(ctx).With().Str("workspace_id", workspaceID).Str("campaign_id", camp.ID).Logger()

	err = repo.SegmentContacts(ctx, s.DB, workspaceID, seg, s.batchSize(), func(page []domain.Contact) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()
		rows := make([]domain.CampaignRecipient, 0, len(page))
		for _, c := range page {
			msisdn, perr := phone.Normalize(c.Phone)
			if perr != nil {
				res.Skipped++
				campaignRecipients.WithLabelValues("skipped").Inc()
				l.Debug().Str("contact_id", c.ID).Err(ErrPhoneNormalizationFailed).Msg("skipping contact")
				continue
			}
			rows = append(rows, domain.CampaignRecipient{
				ID:          uuid.NewString(),
				WorkspaceID: workspaceID,
				CampaignID:  camp.ID,
				ContactID:   c.ID,
				Phone:       msisdn,
				Status:      domain.StatusQueued,
				CreatedAt:   now,
			})
		}
		if len(rows) == 0 && created {
			return nil
		}
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if !created {
				if err := repo.CreateCampaign(ctx, tx, camp); err != nil {
					return err
				}
			}
			n, err := repo.InsertRecipients(ctx, tx, rows)
			if err != nil {
				return err
			}
			if err := repo.AddRecipientCount(ctx, tx, camp.ID, n); err != nil {
				return err
			}
			created = true
			if len(rows) > 0 {
				res.Batches++
			}
			res.RecipientCount += int(n)
			campaignRecipients.WithLabelValues("queued").Add(float64(n))
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		if !created {
			return nil, err
		}
		if serr := repo.SetCampaignStatus(context.WithoutCancel(ctx), s.DB, workspaceID, camp.ID,
			domain.CampaignFailed, []string{domain.CampaignQueued}, s.now()); serr != nil {
			l.Error().Err(serr).Msg("marking campaign failed")
		}
		l.Error().Err(err).Int("committed", res.RecipientCount).Msg("campaign recipient insert aborted")
		return res, &PartialInsertError{CampaignID: camp.ID, Committed: res.RecipientCount, Err: err}
	}

	if !created {
		// Empty audience: the campaign still exists, with no recipients.
		if err := repo.CreateCampaign(ctx, s.DB, camp); err != nil {
			return nil, err
		}
	}

	l.Info().
		Int("recipients", res.RecipientCount).
		Int("batches", res.Batches).
		Int("skipped", res.Skipped).
		Msg("campaign created")
	return res, nil
}

func (s *Campaigns) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return defaultCampaignBatch
}

func parseSegment(in SegmentInput) (repo.Segment, error) {
	seg := repo.Segment{Tag: strings.TrimSpace(in.Tag)}
	raw := strings.TrimSpace(in.CreatedAfter)
	if raw == "" {
		return seg, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			seg.CreatedAfter = &t
			return seg, nil
		}
	}
	return seg, ErrInvalidDate
}

// CampaignStatus is the operator view of a campaign.
type CampaignStatus struct {
	Campaign       domain.Campaign         `json:"campaign"`
	Counts         repo.RecipientCounts    `json:"counts"`
	RecentFailures []repo.RecipientFailure `json:"recent_failures"`
}

// Status aggregates recipient counts and the most recent failures.
func (s *Campaigns) Status(ctx context.Context, workspaceID, campaignID string) (*CampaignStatus, error) {
	c, err := repo.GetCampaign(ctx, s.DB, workspaceID, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	counts, err := repo.CampaignRecipientCounts(ctx, s.DB, workspaceID, campaignID)
	if err != nil {
		return nil, err
	}
	fails, err := repo.RecentRecipientFailures(ctx, s.DB, workspaceID, campaignID, recentFailureSample)
	if err != nil {
		return nil, err
	}
	if fails == nil {
		fails = []repo.RecipientFailure{}
	}
	return &CampaignStatus{Campaign: *c, Counts: counts, RecentFailures: fails}, nil
}

// LaunchResult reports a launch pass.
type LaunchResult struct {
	Enqueued int `json:"enqueued"`
	Failed   int `json:"failed"`
}

// Launch moves a queued campaign to running and enqueues one outbox row per
// queued recipient. Launching a running campaign picks up recipients that
// are still queued; each recipient is claimed before it is enqueued, so
// concurrent launches never enqueue the same recipient twice.
func (s *Campaigns) Launch(ctx context.Context, workspaceID, campaignID string) (*LaunchResult, error) {
	tr := otel.Tracer("services/Campaigns")
	ctx, span := tr.Start(ctx, "Launch",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("campaign.id", campaignID),
		),
	)
	defer span.End()

	c, err := repo.GetCampaign(ctx, s.DB, workspaceID, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, err
	}
	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.SendingAllowed {
		return nil, ErrSendingNotAllowed
	}

	switch c.Status {
	case domain.CampaignQueued:
		err := repo.SetCampaignStatus(ctx, s.DB, workspaceID, campaignID, domain.CampaignRunning,
			[]string{domain.CampaignQueued}, s.now())
		if err != nil && !errors.Is(err, repo.ErrConflict) {
			return nil, err
		}
	case domain.CampaignRunning:
	default:
		return nil, ErrCampaignNotLaunchable
	}

	payload, err := templatePayload(c.TemplateName, c.Language)
	if err != nil {
		return nil, err
	}

	l := log.Ctx(ctx).With().Str("workspace_id", workspaceID).Str("campaign_id", campaignID).Logger()
	res := &LaunchResult{}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := repo.ListQueuedRecipients(ctx, s.DB, workspaceID, campaignID, s.batchSize())
		if err != nil {
			return res, err
		}
		if len(batch) == 0 {
			break
		}
		for _, r := range batch {
			if err := repo.ClaimRecipient(ctx, s.DB, r.ID, s.now()); err != nil {
				if errors.Is(err, repo.ErrConflict) {
					continue
				}
				return res, err
			}
			rid := r.ID
			_, err := s.Dispatcher.Enqueue(ctx, workspaceID, EnqueueInput{
				ToPhone:             r.Phone,
				MessageType:         "template",
				Payload:             payload,
				Author:              domain.AuthorCampaign,
				CampaignRecipientID: &rid,
			})
			if err != nil {
				reason := err.Error()
				if ferr := repo.FinishRecipient(ctx, s.DB, r.ID, domain.StatusFailed, &reason, s.now()); ferr != nil {
					return res, ferr
				}
				res.Failed++
				campaignRecipients.WithLabelValues("failed").Inc()
				l.Warn().Err(err).Str("recipient_id", r.ID).Msg("enqueue for recipient failed")
				continue
			}
			res.Enqueued++
		}
	}

	if err := completeCampaignIfDone(ctx, s.DB, workspaceID, campaignID, s.now()); err != nil {
		return res, err
	}
	l.Info().Int("enqueued", res.Enqueued).Int("failed", res.Failed).Msg("campaign launched")
	return res, nil
}

// ResumeRunning relaunches up to limit running campaigns. It picks up
// recipients left queued by an interrupted launch and completes campaigns
// whose recipients have all reached a terminal state. A failing campaign is
// logged and skipped.
func (s *Campaigns) ResumeRunning(ctx context.Context, limit int) (int, error) {
	running, err := repo.ListCampaignsByStatus(ctx, s.DB, domain.CampaignRunning, limit)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, c := range running {
		res, err := s.Launch(ctx, c.WorkspaceID, c.ID)
		if res != nil {
			enqueued += res.Enqueued
		}
		if err != nil {
			if ctx.Err() != nil {
				return enqueued, ctx.Err()
			}
			log.Ctx(ctx).Warn().Err(err).
				Str("workspace_id", c.WorkspaceID).
				Str("campaign_id", c.ID).
				Msg("resume campaign failed")
		}
	}
	return enqueued, nil
}

// templatePayload builds the Cloud API template object for a campaign.
func templatePayload(name, lang string) (json.RawMessage, error) {
	p := map[string]any{"name": name}
	if lang != "" {
		p["language"] = map[string]string{"code": lang}
	}
	return json.Marshal(p)
}

// completeCampaignIfDone marks a running campaign completed once none of its
// recipients is queued or processing.
func completeCampaignIfDone(ctx context.Context, db *gorm.DB, workspaceID, campaignID string, now time.Time) error {
	counts, err := repo.CampaignRecipientCounts(ctx, db, workspaceID, campaignID)
	if err != nil {
		return err
	}
	if counts.Queued+counts.Processing > 0 {
		return nil
	}
	err = repo.SetCampaignStatus(ctx, db, workspaceID, campaignID, domain.CampaignCompleted,
		[]string{domain.CampaignRunning}, now)
	if errors.Is(err, repo.ErrConflict) {
		return nil
	}
	if err == nil {
		log.Ctx(ctx).Info().Str("workspace_id", workspaceID).Str("campaign_id", campaignID).Msg("campaign completed")
	}
	return err
}
