package types

// EventKind identifies a domain event emitted by the ticket/message
// transition pipeline and consumed by the webhook dispatcher. Values use the
// dot-namespaced form that appears verbatim in outbound payloads.
type EventKind string

const (
	EventTicketCreated         EventKind = "ticket.created"
	EventTicketStatusChanged   EventKind = "ticket.status_changed"
	EventTicketPriorityChanged EventKind = "ticket.priority_changed"
	EventTicketAssigned        EventKind = "ticket.assigned"
	EventTicketSLAChanged      EventKind = "ticket.sla_changed"
	EventMessageCreated        EventKind = "message.created"
	EventReplyReceived         EventKind = "reply.received"
)

// AllEventKinds lists every dispatchable event kind. Used for subscription
// validation in the API layer.
var AllEventKinds = []EventKind{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketAssigned,
	EventTicketSLAChanged,
	EventMessageCreated,
	EventReplyReceived,
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// MessageType categorizes a ticket message.
type MessageType string

const (
	MessageReply  MessageType = "reply"
	MessageNote   MessageType = "note"
	MessageSystem MessageType = "system"
)

// ActivityKind tags a ticket activity-log record.
type ActivityKind string

const (
	ActivityCreated         ActivityKind = "created"
	ActivityStatusChanged   ActivityKind = "status_changed"
	ActivityPriorityChanged ActivityKind = "priority_changed"
	ActivityAssigneeChanged ActivityKind = "assignee_changed"
	ActivitySLAChanged      ActivityKind = "sla_changed"
	ActivityCustomerReply   ActivityKind = "customer_reply"
	ActivityAgentReply      ActivityKind = "agent_reply"
	ActivityNote            ActivityKind = "note"
	ActivitySystem          ActivityKind = "system"
)

// EmailProviderKind identifies a connected mailbox provider.
type EmailProviderKind string

const (
	ProviderMicrosoft365 EmailProviderKind = "microsoft365"
	ProviderGoogle       EmailProviderKind = "google"
	ProviderSMTP         EmailProviderKind = "smtp"
)

// WebhookFormat selects the outbound payload envelope. Only FormatStandard
// carries the HMAC signature header; chat formats are platform embeds.
type WebhookFormat string

const (
	FormatStandard WebhookFormat = "standard"
	FormatSlack    WebhookFormat = "slack"
	FormatDiscord  WebhookFormat = "discord"
)

// ChannelType identifies a notification delivery channel for metrics and
// delivery records.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
	ChannelInApp   ChannelType = "in_app"
)

// DeliveryStatus is the terminal or intermediate state of a delivery attempt.
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
	DeliveryStatusSkipped  DeliveryStatus = "skipped"
)

// FolderSolved is the system folder type closed tickets are moved into.
const FolderSolved = "solved"

// SSRFBlockedCIDRs lists the IP ranges outbound webhook deliveries must never
// reach: loopback, RFC1918 private ranges, link-local, and cloud metadata.
var SSRFBlockedCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}
