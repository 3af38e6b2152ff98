package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"ticketdesk/internal/types"
)

//go:embed templates/*.html
var templateFS embed.FS

// defaultPrimaryColor is used when the organization has no branding color.
const defaultPrimaryColor = "#2563eb"

// templateData is the struct passed into the notification template.
type templateData struct {
	Subject          string
	OrganizationName string
	PrimaryColor     string
	LogoURL          string
	RecipientName    string
	Heading          string
	Paragraphs       []string
	ActionLabel      string
	TicketNumber     string
	TicketURL        string
}

// Renderer produces the HTML body for notification emails by merging
// payload view data with organization branding and ticket context.
type Renderer struct {
	tmpl *template.Template

	// dashboardURL is the public base URL for ticket permalinks.
	dashboardURL string
}

// NewRenderer parses the embedded template. Returns an error if it fails to
// parse, which is a build defect and fatal at startup.
func NewRenderer(dashboardURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/notification.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse notification template: %w", err)
	}
	return &Renderer{tmpl: tmpl, dashboardURL: dashboardURL}, nil
}

// Render produces the final subject and HTML body. The ticket number is
// prepended to the subject as "[NUMBER] " unless the subject already contains
// it verbatim.
func (r *Renderer) Render(org *types.Organization, t *types.Ticket, n *Notification) (subject, html string, err error) {
	subject = subjectWithNumber(n.Subject, t.Number)

	data := templateData{
		Subject:          subject,
		OrganizationName: org.Name,
		PrimaryColor:     org.Branding.PrimaryColor,
		LogoURL:          org.Branding.LogoURL,
		RecipientName:    n.RecipientName(),
		Heading:          n.Heading,
		Paragraphs:       n.Paragraphs,
		ActionLabel:      n.ActionLabel,
		TicketNumber:     t.Number,
		TicketURL:        t.PermalinkURL(r.dashboardURL),
	}
	if data.PrimaryColor == "" {
		data.PrimaryColor = defaultPrimaryColor
	}
	if data.Heading == "" {
		data.Heading = subject
	}
	if data.ActionLabel == "" {
		data.ActionLabel = "View ticket"
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("renderer: failed to render notification: %w", err)
	}

	return subject, buf.String(), nil
}

// subjectWithNumber prepends "[NUMBER] " to the subject unless the number
// already appears verbatim anywhere in it.
func subjectWithNumber(subject, number string) string {
	if number == "" || strings.Contains(subject, number) {
		return subject
	}
	return fmt.Sprintf("[%s] %s", number, subject)
}
