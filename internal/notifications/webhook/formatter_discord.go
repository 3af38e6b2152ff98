package webhook

import (
	"encoding/json"
	"fmt"
	"sort"

	"ticketdesk/internal/types"
)

// Discord embed colors per event kind (decimal color values).
const (
	colorCreated  = 0x2196F3 // Blue
	colorChanged  = 0xFFC107 // Amber
	colorAssigned = 0x9C27B0 // Purple
	colorReply    = 0x4CAF50 // Green
)

// DiscordFormatter renders events as Discord webhook JSON with embeds.
// Discord deliveries are unsigned: the webhook URL itself is the credential.
type DiscordFormatter struct{}

// DiscordPayload is the top-level Discord webhook body.
type DiscordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed is one rich embed.
type DiscordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color,omitempty"`
	Fields      []DiscordField `json:"fields,omitempty"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

// DiscordField is a name/value pair within an embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter is the embed footer text.
type DiscordFooter struct {
	Text string `json:"text"`
}

// Format transforms the job into Discord webhook JSON.
func (f *DiscordFormatter) Format(job *types.WebhookJob) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("discord formatter: job is nil")
	}

	view, err := decodeView(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("discord formatter: decode payload: %w", err)
	}

	title := eventTitle(job.EventKind)

	embed := DiscordEmbed{
		Title:       fmt.Sprintf("%s %s", view.Ticket.Number, view.Ticket.Subject),
		Description: title,
		URL:         view.Ticket.URL,
		Color:       eventColor(job.EventKind),
		Fields:      buildDiscordFields(view),
		Footer: &DiscordFooter{
			Text: fmt.Sprintf("Ticketdesk | %s", string(job.EventKind)),
		},
	}

	payload := DiscordPayload{
		Username: "Ticketdesk",
		Content:  fmt.Sprintf("%s: %s", title, view.Ticket.Number),
		Embeds:   []DiscordEmbed{embed},
	}

	return json.Marshal(payload)
}

// Signed reports that Discord deliveries do not carry the signature header.
func (f *DiscordFormatter) Signed() bool { return false }

// ValidateResponse checks the Discord webhook response. Discord returns 204
// No Content on success for webhook messages.
func (f *DiscordFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(body, &resp); err == nil {
		if msg, ok := resp["message"].(string); ok {
			return fmt.Errorf("discord: API error: %s", msg)
		}
	}

	return fmt.Errorf("discord: unexpected status %d: %s", statusCode, truncateBody(body))
}

// eventColor returns the embed color for an event kind.
func eventColor(kind types.EventKind) int {
	switch kind {
	case types.EventTicketCreated:
		return colorCreated
	case types.EventTicketAssigned:
		return colorAssigned
	case types.EventMessageCreated, types.EventReplyReceived:
		return colorReply
	default:
		return colorChanged
	}
}

// buildDiscordFields creates embed fields from the decoded payload.
func buildDiscordFields(view *payloadView) []DiscordField {
	var fields []DiscordField

	if view.Ticket.Status != nil {
		fields = append(fields, DiscordField{Name: "Status", Value: view.Ticket.Status.Name, Inline: true})
	}
	if view.Ticket.Priority != nil {
		fields = append(fields, DiscordField{Name: "Priority", Value: view.Ticket.Priority.Name, Inline: true})
	}
	if view.Ticket.Assignee != nil {
		fields = append(fields, DiscordField{Name: "Assignee", Value: view.Ticket.Assignee.Name, Inline: true})
	}
	if view.Contact != nil {
		fields = append(fields, DiscordField{Name: "Contact", Value: view.Contact.Name, Inline: true})
	}

	keys := make([]string, 0, len(view.Changes))
	for k := range view.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		from, to := changeNames(view.Changes[k])
		fields = append(fields, DiscordField{
			Name:  capitalizeFirst(k),
			Value: fmt.Sprintf("%s → %s", from, to),
		})
	}

	return fields
}
