package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/repo"
)

var (
	admin = domain.Actor{MemberID: "boss", Role: domain.RoleAdmin}
	super = domain.Actor{MemberID: "sup", Role: domain.RoleSupervisor}
	agent = domain.Actor{MemberID: "m1", Role: domain.RoleAgent}
)

func TestAutoAssign_PicksLeastAssignedFromDefaultTeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	seedTeam(t, db, "ws1", "support", true)
	seedMember(t, db, "ws1", "support", "m1", true, 2, base)
	seedMember(t, db, "ws1", "support", "m2", true, 2, base.Add(time.Minute))
	seedMember(t, db, "ws1", "support", "m3", true, 1, base.Add(2*time.Minute))
	seedConversation(t, db, "ws1", "c1", nil)

	r := NewRouter(db)
	c, err := r.AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: "c1"})
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if c.AssignedMemberID == nil || *c.AssignedMemberID != "m3" {
		t.Fatalf("assigned = %v; want m3", c.AssignedMemberID)
	}
	if c.TeamID == nil || *c.TeamID != "support" {
		t.Fatalf("team = %v; want support", c.TeamID)
	}
	if c.AssignedTo == nil || *c.AssignedTo != "user-m3" {
		t.Fatalf("assigned_to = %v", c.AssignedTo)
	}

	events, _ := repo.ListEvents(ctx, db, "ws1", "c1", 0, 10)
	if len(events) != 1 || events[0].Type != domain.EventAssigned || events[0].CreatedBy != "system" {
		t.Fatalf("events = %+v", events)
	}
}

func TestAutoAssign_ConcurrentCallsHaveOneWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTeam(t, db, "ws1", "support", true)
	seedMember(t, db, "ws1", "support", "m1", true, 0, now)
	seedMember(t, db, "ws1", "support", "m2", true, 0, now.Add(time.Second))
	seedMember(t, db, "ws1", "support", "m3", true, 0, now.Add(2*time.Second))
	seedConversation(t, db, "ws1", "c1", nil)

	r := NewRouter(db)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: "c1"}); err != nil {
				t.Errorf("auto-assign: %v", err)
			}
		}()
	}
	wg.Wait()

	var evs int64
	db.Model(&domain.ConversationEvent{}).Where("conversation_id = ? AND type = ?", "c1", domain.EventAssigned).Count(&evs)
	if evs != 1 {
		t.Fatalf("assignment events = %d; want 1", evs)
	}
	var total int64
	db.Model(&domain.TeamMember{}).Select("COALESCE(SUM(assigned_count), 0)").Scan(&total)
	if total != 1 {
		t.Fatalf("round-robin counters bumped %d times; want 1", total)
	}
}

func TestAutoAssign_RoundRobinFairness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTeam(t, db, "ws1", "support", true)
	members := []string{"m1", "m2", "m3"}
	for i, m := range members {
		seedMember(t, db, "ws1", "support", m, true, 0, now.Add(time.Duration(i)*time.Second))
	}
	clk := newClock()
	r := NewRouter(db)
	r.Now = clk.Now

	got := map[string]int{}
	for i := 0; i < 9; i++ {
		id := "c" + string(rune('a'+i))
		seedConversation(t, db, "ws1", id, nil)
		clk.Advance(time.Second)
		c, err := r.AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: id})
		if err != nil {
			t.Fatalf("auto-assign %s: %v", id, err)
		}
		got[*c.AssignedMemberID]++
		// Nobody receives a k+1-th conversation before everyone has k.
		round := i/len(members) + 1
		for _, m := range members {
			if got[m] > round {
				t.Fatalf("after %d assignments member %s has %d", i+1, m, got[m])
			}
		}
	}
	for _, m := range members {
		if got[m] != 3 {
			t.Fatalf("distribution = %v", got)
		}
	}
}

func TestAutoAssign_NoActiveMemberLeavesConversation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTeam(t, db, "ws1", "support", true)
	seedMember(t, db, "ws1", "support", "m1", false, 0, time.Now())
	seedConversation(t, db, "ws1", "c1", nil)

	_, err := NewRouter(db).AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: "c1"})
	if !errors.Is(err, ErrNoActiveMember) {
		t.Fatalf("expected ErrNoActiveMember, got %v", err)
	}
	c, _ := repo.GetConversation(ctx, db, "ws1", "c1")
	if c.AssignedMemberID != nil || c.TeamID != nil || c.AssignVersion != 0 {
		t.Fatalf("conversation changed: %+v", c)
	}
}

func TestAutoAssign_Errors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	r := NewRouter(db)
	seedConversation(t, db, "ws1", "c1", nil)

	if _, err := r.AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: "missing"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := r.AutoAssign(ctx, "ws1", "", AutoAssignInput{ConversationID: "c1"}); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("expected ErrTeamNotFound without a default team, got %v", err)
	}
	if _, err := r.AutoAssign(ctx, "ws2", "", AutoAssignInput{ConversationID: "c1"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("conversation must be scoped by workspace, got %v", err)
	}
}

func TestAssignMember_Rules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTeam(t, db, "ws1", "support", false)
	seedMember(t, db, "ws1", "support", "m1", true, 0, now)
	seedMember(t, db, "ws1", "support", "m2", true, 0, now)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	r := NewRouter(db)

	if _, err := r.AssignMember(ctx, "ws1", agent, "c1", "m2"); !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("agent assigning someone else: %v", err)
	}
	c, err := r.AssignMember(ctx, "ws1", agent, "c1", "m1")
	if err != nil || *c.AssignedMemberID != "m1" {
		t.Fatalf("self-assign: %v", err)
	}
	if _, err := r.AssignMember(ctx, "ws1", super, "c1", "stranger"); !errors.Is(err, ErrNotTeamMember) {
		t.Fatalf("expected ErrNotTeamMember, got %v", err)
	}
}

func TestTakeover_ExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	saveSettings(t, db, "ws1", func(s *domain.WorkspaceSettings) { s.TakeoverEnabled = true })
	seedTeam(t, db, "ws1", "support", false)
	seedMember(t, db, "ws1", "support", "m1", true, 0, now)
	seedMember(t, db, "ws1", "support", "sup", true, 0, now)
	seedMember(t, db, "ws1", "support", "sup2", true, 0, now)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	r := NewRouter(db)
	if _, err := r.AssignMember(ctx, "ws1", agent, "c1", "m1"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, already := 0, 0
	for _, who := range []string{"sup", "sup2", "sup", "sup2"} {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			_, err := r.Takeover(ctx, "ws1", domain.Actor{MemberID: who, Role: domain.RoleSupervisor}, "c1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyTakenOver):
				already++
			default:
				t.Errorf("takeover: %v", err)
			}
		}(who)
	}
	wg.Wait()
	if wins != 1 || already != 3 {
		t.Fatalf("wins=%d already=%d", wins, already)
	}

	c, _ := repo.GetConversation(ctx, db, "ws1", "c1")
	if c.TakeoverPrevAssignedMemberID == nil || *c.TakeoverPrevAssignedMemberID != "m1" {
		t.Fatalf("previous assignee = %v; want m1", c.TakeoverPrevAssignedMemberID)
	}
	if *c.AssignedMemberID != *c.TakeoverByMemberID {
		t.Fatalf("assignee %s != taker %s", *c.AssignedMemberID, *c.TakeoverByMemberID)
	}
	var evs int64
	db.Model(&domain.ConversationEvent{}).Where("type = ?", domain.EventTakeover).Count(&evs)
	if evs != 1 {
		t.Fatalf("takeover events = %d; want 1", evs)
	}
}

func TestTakeover_Preconditions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTeam(t, db, "ws1", "support", false)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	r := NewRouter(db)

	if _, err := r.Takeover(ctx, "ws1", super, "c1"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
	saveSettings(t, db, "ws1", func(s *domain.WorkspaceSettings) { s.TakeoverEnabled = true })
	if _, err := r.Takeover(ctx, "ws1", agent, "c1"); !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("expected ErrForbiddenRole, got %v", err)
	}
	if _, err := r.Takeover(ctx, "ws1", super, "c1"); !errors.Is(err, ErrNotTeamMember) {
		t.Fatalf("expected ErrNotTeamMember, got %v", err)
	}
	c, _ := repo.GetConversation(ctx, db, "ws1", "c1")
	if c.TakeoverByMemberID != nil || c.AssignVersion != 0 {
		t.Fatalf("rejected takeover changed state: %+v", c)
	}
}

func TestReleaseTakeover_RestoresPreviousAssignee(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	saveSettings(t, db, "ws1", func(s *domain.WorkspaceSettings) { s.TakeoverEnabled = true })
	seedTeam(t, db, "ws1", "support", false)
	seedMember(t, db, "ws1", "support", "m1", true, 0, now)
	seedMember(t, db, "ws1", "support", "sup", true, 0, now)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	r := NewRouter(db)

	if _, err := r.ReleaseTakeover(ctx, "ws1", super, "c1"); !errors.Is(err, ErrNotTakenOver) {
		t.Fatalf("expected ErrNotTakenOver, got %v", err)
	}
	if _, err := r.AssignMember(ctx, "ws1", agent, "c1", "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Takeover(ctx, "ws1", super, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReleaseTakeover(ctx, "ws1", domain.Actor{MemberID: "other", Role: domain.RoleSupervisor}, "c1"); !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("expected ErrForbiddenRole, got %v", err)
	}
	c, err := r.ReleaseTakeover(ctx, "ws1", super, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.TakeoverByMemberID != nil || c.AssignedMemberID == nil || *c.AssignedMemberID != "m1" {
		t.Fatalf("after release: %+v", c)
	}
}

func TestTransfer_RoleRulesAndClearsAssignment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedTeam(t, db, "ws1", "support", false)
	seedTeam(t, db, "ws1", "billing", false)
	seedMember(t, db, "ws1", "support", "m1", true, 0, now)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	r := NewRouter(db)
	if _, err := r.AssignMember(ctx, "ws1", agent, "c1", "m1"); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Transfer(ctx, "ws1", agent, "c1", "billing"); !errors.Is(err, ErrForbiddenRole) {
		t.Fatalf("agent transfer: %v", err)
	}
	if _, err := r.Transfer(ctx, "ws1", super, "c1", "billing"); !errors.Is(err, ErrNotTeamMember) {
		t.Fatalf("supervisor outside target team: %v", err)
	}
	if _, err := r.Transfer(ctx, "ws1", admin, "c1", "nope"); !errors.Is(err, ErrTeamNotFound) {
		t.Fatalf("unknown team: %v", err)
	}
	c, err := r.Transfer(ctx, "ws1", admin, "c1", "billing")
	if err != nil {
		t.Fatal(err)
	}
	if *c.TeamID != "billing" || c.AssignedMemberID != nil {
		t.Fatalf("after transfer: team=%v assignee=%v", c.TeamID, c.AssignedMemberID)
	}
	var ev domain.ConversationEvent
	if err := db.Where("conversation_id = ? AND type = ?", "c1", domain.EventTransfer).First(&ev).Error; err != nil {
		t.Fatalf("transfer event: %v", err)
	}
	if ev.CreatedBy != "boss" {
		t.Fatalf("created_by = %q; want boss", ev.CreatedBy)
	}
}

func TestSetCategory_RoutesToCategoryTeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	saveSettings(t, db, "ws1", func(s *domain.WorkspaceSettings) { s.SkillRoutingEnabled = true })
	seedTeam(t, db, "ws1", "support", false)
	seedTeam(t, db, "ws1", "billing", false)
	seedMember(t, db, "ws1", "billing", "b1", true, 0, now)
	seedConversation(t, db, "ws1", "c1", ptr("support"))
	cats := []domain.RoutingCategory{
		{ID: "cat-billing", WorkspaceID: "ws1", Key: "billing", Label: "Billing", DefaultTeamID: ptr("billing"), CreatedAt: now},
		{ID: "cat-misc", WorkspaceID: "ws1", Key: "misc", Label: "Misc", CreatedAt: now},
	}
	if err := db.Create(&cats).Error; err != nil {
		t.Fatal(err)
	}
	r := NewRouter(db)

	res, err := r.SetCategory(ctx, "ws1", agent, "c1", "cat-billing")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Routed || *res.Conversation.TeamID != "billing" || *res.Conversation.AssignedMemberID != "b1" {
		t.Fatalf("result = %+v", res)
	}

	if _, err := r.SetCategory(ctx, "ws1", agent, "c1", "missing"); !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestSetCategory_RoutingFailureKeepsCategory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	saveSettings(t, db, "ws1", func(s *domain.WorkspaceSettings) { s.SkillRoutingEnabled = true })
	seedTeam(t, db, "ws1", "billing", false)
	seedConversation(t, db, "ws1", "c1", nil)
	cat := domain.RoutingCategory{ID: "cat", WorkspaceID: "ws1", Key: "billing", Label: "Billing", DefaultTeamID: ptr("billing"), CreatedAt: now}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatal(err)
	}

	res, err := NewRouter(db).SetCategory(ctx, "ws1", agent, "c1", "cat")
	if err != nil {
		t.Fatal(err)
	}
	if res.Routed || !errors.Is(res.RoutingError, ErrNoActiveMember) {
		t.Fatalf("result = %+v", res)
	}
	c, _ := repo.GetConversation(ctx, db, "ws1", "c1")
	if c.CategoryID == nil || *c.CategoryID != "cat" {
		t.Fatalf("category = %v; want cat", c.CategoryID)
	}
}
