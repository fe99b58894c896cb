// Package sla computes response and resolution due timestamps for
// conversations and classifies them as on track, due soon, or breached.
// Everything here is a pure function of its inputs.
package sla

import (
	"time"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// Status is the SLA state of a conversation at a given instant.
type Status string

const (
	OnTrack  Status = "on_track"
	DueSoon  Status = "due_soon"
	Breached Status = "breached"
)

// Clock names which deadline drove a Result.
type Clock string

const (
	ClockNone       Clock = ""
	ClockResponse   Clock = "response"
	ClockResolution Clock = "resolution"
)

// Policy is the per-workspace SLA window configuration.
type Policy struct {
	Response   time.Duration
	Resolution time.Duration
	// DueSoonFraction is the trailing share of a window in which a pending
	// deadline is reported as DueSoon (0.25 means the last quarter).
	DueSoonFraction float64
}

// PolicyFrom builds a Policy from workspace settings.
func PolicyFrom(ws domain.WorkspaceSettings) Policy {
	frac := float64(ws.DueSoonPercent) / 100
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return Policy{
		Response:        time.Duration(ws.ResponseSLAMinutes) * time.Minute,
		Resolution:      time.Duration(ws.ResolutionSLAHours) * time.Hour,
		DueSoonFraction: frac,
	}
}

// ResponseDue returns the next-response deadline for a customer message
// received at at. A zero window disables the clock (nil).
func (p Policy) ResponseDue(at time.Time) *time.Time {
	if p.Response <= 0 {
		return nil
	}
	d := at.Add(p.Response).UTC()
	return &d
}

// ResolutionDue returns the resolution deadline for a conversation opened at
// at. A zero window disables the clock (nil).
func (p Policy) ResolutionDue(at time.Time) *time.Time {
	if p.Resolution <= 0 {
		return nil
	}
	d := at.Add(p.Resolution).UTC()
	return &d
}

// Result is the outcome of Evaluate.
type Result struct {
	Status Status     `json:"status"`
	Clock  Clock      `json:"clock,omitempty"`
	DueAt  *time.Time `json:"due_at,omitempty"`
}

// Evaluate classifies c at now. Resolved conversations are always on track.
// When both clocks are running the worse state wins; on a tie the earlier
// deadline is reported.
func Evaluate(c *domain.Conversation, p Policy, now time.Time) Result {
	if c == nil || c.TicketStatus == domain.TicketResolved {
		return Result{Status: OnTrack}
	}
	resp := classify(c.NextResponseDueAt, p.Response, p.DueSoonFraction, now)
	res := classify(c.ResolutionDueAt, p.Resolution, p.DueSoonFraction, now)

	out := Result{Status: OnTrack}
	if c.NextResponseDueAt != nil {
		out = Result{Status: resp, Clock: ClockResponse, DueAt: c.NextResponseDueAt}
	}
	if c.ResolutionDueAt != nil {
		cand := Result{Status: res, Clock: ClockResolution, DueAt: c.ResolutionDueAt}
		if out.Clock == ClockNone || worse(cand, out) {
			out = cand
		}
	}
	return out
}

func classify(due *time.Time, window time.Duration, frac float64, now time.Time) Status {
	if due == nil {
		return OnTrack
	}
	if !now.Before(*due) {
		return Breached
	}
	soon := time.Duration(float64(window) * frac)
	if soon > 0 && !now.Before(due.Add(-soon)) {
		return DueSoon
	}
	return OnTrack
}

func rank(s Status) int {
	switch s {
	case Breached:
		return 2
	case DueSoon:
		return 1
	}
	return 0
}

func worse(a, b Result) bool {
	if rank(a.Status) != rank(b.Status) {
		return rank(a.Status) > rank(b.Status)
	}
	return a.DueAt.Before(*b.DueAt)
}
