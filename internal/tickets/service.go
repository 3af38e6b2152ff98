package tickets

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

// TicketStore is the slice of the ticket repository the transition pipeline
// writes through. All mutating methods are quiet saves.
type TicketStore interface {
	NextTicketNumber(ctx context.Context, orgID string) (string, error)
	Insert(ctx context.Context, t *types.Ticket) error
	SetResolved(ctx context.Context, ticketID string, resolvedAt time.Time, folderID string) error
	Reopen(ctx context.Context, ticketID string, openStatusID string) error
	ClearFolder(ctx context.Context, ticketID string) error
	SetSLADueDates(ctx context.Context, ticketID string, firstResponseDue, resolutionDue *time.Time) error
	SetFirstResponseAt(ctx context.Context, ticketID string, at time.Time) error
}

// ActivityStore appends activity-log rows.
type ActivityStore interface {
	Append(ctx context.Context, e *types.ActivityEntry) error
}

// Directory is the read-only lookup surface the pipeline hydrates defaults
// and mention targets from.
type Directory interface {
	GetOrganization(ctx context.Context, id string) (*types.Organization, error)
	GetContact(ctx context.Context, id string) (*types.Contact, error)
	GetSLA(ctx context.Context, id string) (*types.SLA, error)
	GetSystemFolder(ctx context.Context, orgID string, systemType string) (*types.Folder, error)
	GetUsersByHandles(ctx context.Context, orgID string, handles []string) ([]types.User, error)
}

// EmailEnqueuer publishes email notification jobs.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, job *types.EmailJob) error
}

// Service runs transitions end to end: it prepares and persists the entity
// write, computes the effect list and applies it. Persistence effects
// propagate errors; notification and webhook effects never do.
type Service struct {
	tickets   TicketStore
	activity  ActivityStore
	directory Directory
	email     EmailEnqueuer
	webhooks  WebhookDispatcher
	clock     types.Clock
	logger    types.Logger
}

// NewService wires a transition service. email and webhooks may be nil in
// reduced deployments; the corresponding effects become no-ops.
func NewService(tickets TicketStore, activity ActivityStore, directory Directory, email EmailEnqueuer, webhooks WebhookDispatcher, clock types.Clock, logger types.Logger) *Service {
	return &Service{
		tickets:   tickets,
		activity:  activity,
		directory: directory,
		email:     email,
		webhooks:  webhooks,
		clock:     clock,
		logger:    logger,
	}
}

// PrepareCreate fills creation defaults in order: ticket number from the
// organization sequence, default status, default priority, SLA (contact
// override wins over the organization default), then SLA due dates. Every
// step is idempotent: fields already set are left untouched, and the
// sequence is drawn only when the number is empty.
func (s *Service) PrepareCreate(ctx context.Context, opCtx types.OperationContext, t *types.Ticket) error {
	org, err := s.directory.GetOrganization(ctx, opCtx.OrganizationID)
	if err != nil {
		return err
	}

	if t.Number == "" {
		num, err := s.tickets.NextTicketNumber(ctx, org.ID)
		if err != nil {
			return err
		}
		t.Number = num
	}
	if t.StatusID == "" {
		t.StatusID = org.DefaultStatusID
	}
	if t.PriorityID == "" {
		t.PriorityID = org.DefaultPriorityID
	}
	if t.SLAID == "" {
		t.SLAID = org.DefaultSLAID
		if t.ContactID != "" {
			contact, err := s.directory.GetContact(ctx, t.ContactID)
			if err != nil {
				return err
			}
			if contact.SLAID != nil && *contact.SLAID != "" {
				t.SLAID = *contact.SLAID
			}
		}
	}
	if t.SLAID != "" && t.FirstResponseDueAt == nil && t.ResolutionDueAt == nil {
		sla, err := s.directory.GetSLA(ctx, t.SLAID)
		if err != nil {
			return err
		}
		t.FirstResponseDueAt, t.ResolutionDueAt = dueDates(sla, s.clock.Now())
	}
	return nil
}

// Create prepares, persists and announces a new ticket.
func (s *Service) Create(ctx context.Context, opCtx types.OperationContext, t *types.Ticket) error {
	if err := s.PrepareCreate(ctx, opCtx, t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.tickets.Insert(ctx, t); err != nil {
		return err
	}
	return s.Apply(ctx, opCtx, OnCreated(opCtx, t, s.clock.Now()))
}

// Update applies the effects of an already-persisted ticket update, given
// the pre-update and post-update snapshots.
func (s *Service) Update(ctx context.Context, opCtx types.OperationContext, old, updated *types.Ticket) error {
	return s.Apply(ctx, opCtx, ApplyUpdate(opCtx, old, updated, s.clock.Now()))
}

// RecordMessage applies the effects of a freshly persisted message.
func (s *Service) RecordMessage(ctx context.Context, opCtx types.OperationContext, t *types.Message) error {
	if t.Ticket == nil {
		return types.NewAppError(types.ErrCodeNotFoundTicket, "message carries no ticket context", nil)
	}
	org, err := s.directory.GetOrganization(ctx, opCtx.OrganizationID)
	if err != nil {
		return err
	}
	return s.Apply(ctx, opCtx, OnMessageCreated(opCtx, org, t.Ticket, t, s.clock.Now()))
}

// Apply runs an effect list in order. Persistence effects abort on error;
// enqueue and dispatch effects log failures and continue, so a broken
// integration can never fail the triggering mutation.
func (s *Service) Apply(ctx context.Context, opCtx types.OperationContext, effects []Effect) error {
	for _, effect := range effects {
		switch e := effect.(type) {
		case ActivityEffect:
			entry := e.Entry
			if err := s.activity.Append(ctx, &entry); err != nil {
				return err
			}
		case ResolveEffect:
			folder, err := s.directory.GetSystemFolder(ctx, opCtx.OrganizationID, types.FolderSolved)
			if err != nil {
				return err
			}
			if err := s.tickets.SetResolved(ctx, e.TicketID, e.ResolvedAt, folder.ID); err != nil {
				return err
			}
		case ReopenEffect:
			if err := s.tickets.Reopen(ctx, e.TicketID, e.OpenStatusID); err != nil {
				return err
			}
		case ClearFolderEffect:
			if err := s.tickets.ClearFolder(ctx, e.TicketID); err != nil {
				return err
			}
		case FirstResponseEffect:
			if err := s.tickets.SetFirstResponseAt(ctx, e.TicketID, e.At); err != nil {
				return err
			}
		case DueDatesEffect:
			if err := s.tickets.SetSLADueDates(ctx, e.TicketID, e.FirstResponseDue, e.ResolutionDue); err != nil {
				return err
			}
		case EmailJobEffect:
			s.enqueueEmail(ctx, e.Job)
		case MentionEffect:
			s.fanOutMentions(ctx, e)
		case WebhookEffect:
			if s.webhooks != nil {
				e.Dispatch(ctx, s.webhooks)
			}
		}
	}
	return nil
}

func (s *Service) enqueueEmail(ctx context.Context, job types.EmailJob) {
	if s.email == nil {
		return
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if err := s.email.EnqueueEmail(ctx, &job); err != nil {
		s.logger.Warn("email enqueue failed",
			"kind", string(job.Kind),
			"ticket_id", job.TicketID,
			"error", err)
	}
}

// fanOutMentions resolves handles to users and enqueues one mention job per
// distinct user. Unresolvable handles are plain text. Failures are logged
// and swallowed.
func (s *Service) fanOutMentions(ctx context.Context, e MentionEffect) {
	if s.email == nil {
		return
	}
	users, err := s.directory.GetUsersByHandles(ctx, e.OrganizationID, e.Handles)
	if err != nil {
		s.logger.Warn("mention resolution failed",
			"ticket_id", e.TicketID,
			"message_id", e.MessageID,
			"error", err)
		return
	}
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		s.enqueueEmail(ctx, types.EmailJob{
			Kind:           types.EmailJobMention,
			OrganizationID: e.OrganizationID,
			TicketID:       e.TicketID,
			MessageID:      e.MessageID,
			RecipientID:    u.ID,
			OccurredAt:     s.clock.Now(),
		})
	}
}
