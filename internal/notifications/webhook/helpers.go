package webhook

import (
	"encoding/json"
	"strings"

	"ticketdesk/internal/types"
)

// payloadView is the decoded shape chat formatters render from. Ticket and
// message payloads both decode into it; absent sections stay nil.
type payloadView struct {
	Ticket  TicketSummary          `json:"ticket"`
	Message *MessageSummary        `json:"message"`
	Contact *PersonRef             `json:"contact"`
	Changes map[string]FieldChange `json:"changes"`
}

func decodeView(raw json.RawMessage) (*payloadView, error) {
	var v payloadView
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// eventTitle returns a human-readable title for an event kind.
func eventTitle(kind types.EventKind) string {
	switch kind {
	case types.EventTicketCreated:
		return "Ticket Created"
	case types.EventTicketStatusChanged:
		return "Status Changed"
	case types.EventTicketPriorityChanged:
		return "Priority Changed"
	case types.EventTicketAssigned:
		return "Ticket Assigned"
	case types.EventTicketSLAChanged:
		return "SLA Changed"
	case types.EventMessageCreated:
		return "New Message"
	case types.EventReplyReceived:
		return "Customer Reply"
	default:
		return "Notification"
	}
}

// changeNames extracts display names from the from/to sides of a decoded
// change block. Nil sides render as "none" (unassignment, initial
// assignment).
func changeNames(fc FieldChange) (from, to string) {
	return refName(fc.From), refName(fc.To)
}

func refName(side any) string {
	m, ok := side.(map[string]any)
	if !ok {
		return "none"
	}
	if name, ok := m["name"].(string); ok && name != "" {
		return name
	}
	return "none"
}

// capitalizeFirst returns the string with its first letter capitalized.
// Used for display formatting of change field names.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// truncateBody limits response body excerpts recorded in failure reasons.
func truncateBody(body []byte) string {
	const maxLen = 200
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
