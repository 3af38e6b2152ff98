package tickets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/types"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func opCtx() types.OperationContext {
	return types.OperationContext{OrganizationID: "org_1", ActorUserID: "user_actor"}
}

func baseTicket() *types.Ticket {
	return &types.Ticket{
		ID:             "tkt_1",
		OrganizationID: "org_1",
		Number:         "TKT-5",
		Subject:        "VPN down",
		StatusID:       "st_open",
		PriorityID:     "pr_normal",
		ContactID:      "ct_1",
		Status:         &types.TicketStatus{ID: "st_open", Name: "Open"},
		Priority:       &types.TicketPriority{ID: "pr_normal", Name: "Normal"},
	}
}

func effectKinds(effects []Effect) []string {
	var kinds []string
	for _, e := range effects {
		switch e := e.(type) {
		case ActivityEffect:
			kinds = append(kinds, "activity:"+string(e.Entry.Kind))
		case ResolveEffect:
			kinds = append(kinds, "resolve")
		case ReopenEffect:
			kinds = append(kinds, "reopen")
		case ClearFolderEffect:
			kinds = append(kinds, "clear_folder")
		case FirstResponseEffect:
			kinds = append(kinds, "first_response")
		case DueDatesEffect:
			kinds = append(kinds, "due_dates")
		case EmailJobEffect:
			kinds = append(kinds, "email:"+string(e.Job.Kind))
		case MentionEffect:
			kinds = append(kinds, "mentions")
		case WebhookEffect:
			kinds = append(kinds, "webhook:"+string(e.Kind))
		}
	}
	return kinds
}

func TestApplyUpdate_NoChanges(t *testing.T) {
	old := baseTicket()
	updated := baseTicket()

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Empty(t, effects)
}

func TestApplyUpdate_StatusClosing(t *testing.T) {
	old := baseTicket()
	updated := baseTicket()
	updated.StatusID = "st_closed"
	updated.Status = &types.TicketStatus{ID: "st_closed", Name: "Closed", IsClosed: true}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"resolve",
		"activity:status_changed",
		"webhook:ticket.status_changed",
	}, effectKinds(effects))

	resolve := effects[0].(ResolveEffect)
	assert.Equal(t, "tkt_1", resolve.TicketID)
	assert.Equal(t, testNow, resolve.ResolvedAt)

	activity := effects[1].(ActivityEffect)
	assert.Equal(t, "Open", activity.Entry.OldValue)
	assert.Equal(t, "Closed", activity.Entry.NewValue)
	assert.Equal(t, "user_actor", activity.Entry.ActorUserID)
}

func TestApplyUpdate_StatusClosing_AlreadyResolvedOnce(t *testing.T) {
	resolvedAt := testNow.Add(-24 * time.Hour)
	old := baseTicket()
	old.ResolvedAt = &resolvedAt
	updated := baseTicket()
	updated.ResolvedAt = &resolvedAt
	updated.StatusID = "st_closed"
	updated.Status = &types.TicketStatus{ID: "st_closed", Name: "Closed", IsClosed: true}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	// resolvedAt is stamped at most once: no resolve effect this time.
	assert.Equal(t, []string{
		"activity:status_changed",
		"webhook:ticket.status_changed",
	}, effectKinds(effects))
}

func TestApplyUpdate_StatusChangeBetweenOpenStates(t *testing.T) {
	old := baseTicket()
	updated := baseTicket()
	updated.StatusID = "st_pending"
	updated.Status = &types.TicketStatus{ID: "st_pending", Name: "Pending"}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"activity:status_changed",
		"webhook:ticket.status_changed",
	}, effectKinds(effects))
}

func TestApplyUpdate_Assignment(t *testing.T) {
	assignee := "user_7"
	old := baseTicket()
	updated := baseTicket()
	updated.AssignedTo = &assignee
	updated.Assignee = &types.User{ID: "user_7", Name: "Dana"}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"activity:assignee_changed",
		"email:ticket_assigned",
		"webhook:ticket.assigned",
	}, effectKinds(effects))

	activity := effects[0].(ActivityEffect)
	assert.Equal(t, "", activity.Entry.OldValue)
	assert.Equal(t, "Dana", activity.Entry.NewValue)

	job := effects[1].(EmailJobEffect).Job
	assert.Equal(t, "user_7", job.RecipientID)
	assert.Equal(t, "tkt_1", job.TicketID)
}

func TestApplyUpdate_Unassignment_NoEmailJob(t *testing.T) {
	assignee := "user_7"
	old := baseTicket()
	old.AssignedTo = &assignee
	old.Assignee = &types.User{ID: "user_7", Name: "Dana"}
	updated := baseTicket()

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"activity:assignee_changed",
		"webhook:ticket.assigned",
	}, effectKinds(effects))

	activity := effects[0].(ActivityEffect)
	assert.Equal(t, "Dana", activity.Entry.OldValue)
	assert.Equal(t, "", activity.Entry.NewValue)
}

func TestApplyUpdate_SLAChange_RecomputesDueDates(t *testing.T) {
	old := baseTicket()
	updated := baseTicket()
	updated.SLAID = "sla_gold"
	updated.SLA = &types.SLA{ID: "sla_gold", Name: "Gold", FirstResponseHours: 4, ResolutionHours: 24}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"due_dates",
		"activity:sla_changed",
		"webhook:ticket.sla_changed",
	}, effectKinds(effects))

	due := effects[0].(DueDatesEffect)
	require.NotNil(t, due.FirstResponseDue)
	require.NotNil(t, due.ResolutionDue)
	assert.Equal(t, testNow.Add(4*time.Hour), *due.FirstResponseDue)
	assert.Equal(t, testNow.Add(24*time.Hour), *due.ResolutionDue)
}

func TestApplyUpdate_MultipleBranchesFireIndependently(t *testing.T) {
	assignee := "user_7"
	old := baseTicket()
	updated := baseTicket()
	updated.PriorityID = "pr_high"
	updated.Priority = &types.TicketPriority{ID: "pr_high", Name: "High", Level: 3}
	updated.AssignedTo = &assignee
	updated.Assignee = &types.User{ID: "user_7", Name: "Dana"}

	effects := ApplyUpdate(opCtx(), old, updated, testNow)
	assert.Equal(t, []string{
		"activity:priority_changed",
		"activity:assignee_changed",
		"webhook:ticket.priority_changed",
		"email:ticket_assigned",
		"webhook:ticket.assigned",
	}, effectKinds(effects))
}

func TestOnCreated(t *testing.T) {
	ticket := baseTicket()

	effects := OnCreated(opCtx(), ticket, testNow)
	assert.Equal(t, []string{
		"activity:created",
		"email:ticket_created",
		"webhook:ticket.created",
	}, effectKinds(effects))

	activity := effects[0].(ActivityEffect)
	assert.Empty(t, activity.Entry.OldValue)
	assert.Empty(t, activity.Entry.NewValue)

	job := effects[1].(EmailJobEffect).Job
	assert.Empty(t, job.RecipientID, "no assignee at creation leaves the recipient hint empty")
}

func TestOnCreated_WithAssignee(t *testing.T) {
	assignee := "user_7"
	ticket := baseTicket()
	ticket.AssignedTo = &assignee

	effects := OnCreated(opCtx(), ticket, testNow)
	job := effects[1].(EmailJobEffect).Job
	assert.Equal(t, "user_7", job.RecipientID)
}
