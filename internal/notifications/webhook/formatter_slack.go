package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"ticketdesk/internal/types"
)

// SlackFormatter renders events as Slack Block Kit JSON for incoming
// webhooks. Slack deliveries are unsigned: the webhook URL itself is the
// credential.
type SlackFormatter struct{}

// SlackPayload is the top-level Slack incoming-webhook body.
type SlackPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks,omitempty"`
}

// SlackBlock is one Block Kit block.
type SlackBlock struct {
	Type     string       `json:"type"`
	Text     *SlackText   `json:"text,omitempty"`
	Fields   []*SlackText `json:"fields,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText is a Block Kit text object.
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Format transforms the job into Slack Block Kit JSON.
func (f *SlackFormatter) Format(job *types.WebhookJob) ([]byte, error) {
	if job == nil {
		return nil, fmt.Errorf("slack formatter: job is nil")
	}

	view, err := decodeView(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("slack formatter: decode payload: %w", err)
	}

	title := eventTitle(job.EventKind)
	fallback := fmt.Sprintf("[%s] %s: %s", view.Ticket.Number, title, view.Ticket.Subject)

	payload := SlackPayload{
		Text: fallback,
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: title},
			},
			{
				Type: "section",
				Text: &SlackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("<%s|%s> %s", view.Ticket.URL, view.Ticket.Number, view.Ticket.Subject),
				},
			},
		},
	}

	if fields := buildSlackFields(view); len(fields) > 0 {
		payload.Blocks = append(payload.Blocks, SlackBlock{
			Type:   "section",
			Fields: fields,
		})
	}

	payload.Blocks = append(payload.Blocks, SlackBlock{
		Type: "context",
		Elements: []*SlackText{
			{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Event*: %s | Ticketdesk", string(job.EventKind)),
			},
		},
	})

	return json.Marshal(payload)
}

// Signed reports that Slack deliveries do not carry the signature header.
func (f *SlackFormatter) Signed() bool { return false }

// ValidateResponse checks for Slack's soft-failure pattern where the API
// returns HTTP 200 but the body indicates an error ("ok": false, or a plain
// text error token).
func (f *SlackFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("slack: unexpected status %d", statusCode)
	}

	bodyStr := strings.TrimSpace(string(body))

	// Slack incoming webhooks return "ok" as plain text on success.
	if bodyStr == "ok" {
		return nil
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(body, &resp); err == nil {
		if ok, exists := resp["ok"]; exists {
			if okBool, isBool := ok.(bool); isBool && !okBool {
				errMsg := "unknown error"
				if e, exists := resp["error"]; exists {
					if eStr, isStr := e.(string); isStr {
						errMsg = eStr
					}
				}
				return fmt.Errorf("slack: API error: %s", errMsg)
			}
		}
	}

	knownErrors := []string{
		"no_text",
		"channel_not_found",
		"channel_is_archived",
		"invalid_payload",
		"too_many_attachments",
	}
	for _, known := range knownErrors {
		if bodyStr == known {
			return fmt.Errorf("slack: API error: %s", bodyStr)
		}
	}

	return nil
}

// buildSlackFields creates field pairs from the decoded payload.
func buildSlackFields(view *payloadView) []*SlackText {
	var fields []*SlackText

	if view.Ticket.Status != nil {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Status*\n%s", view.Ticket.Status.Name)})
	}
	if view.Ticket.Priority != nil {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Priority*\n%s", view.Ticket.Priority.Name)})
	}
	if view.Ticket.Assignee != nil {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Assignee*\n%s", view.Ticket.Assignee.Name)})
	}
	if view.Contact != nil {
		fields = append(fields, &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Contact*\n%s", view.Contact.Name)})
	}

	// Render change blocks in a stable order.
	keys := make([]string, 0, len(view.Changes))
	for k := range view.Changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		from, to := changeNames(view.Changes[k])
		fields = append(fields, &SlackText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*%s*\n%s → %s", capitalizeFirst(k), from, to),
		})
	}

	return fields
}
