package external

import (
	"fmt"
	"net/http"

	"ticketdesk/internal/config"
	"ticketdesk/internal/notifications/email"
	"ticketdesk/internal/types"
)

// ProviderRegistry is the static mapping from provider kind to client, built
// once at startup. There is no runtime discovery: a kind is either
// constructed here or it does not exist. In local/test mode every kind maps
// to the stub provider so the process boots without real credentials.
type ProviderRegistry struct {
	providers map[types.EmailProviderKind]EmailProvider
	logger    types.Logger
}

// NewProviderRegistry builds the registry from process configuration.
// Providers whose application credentials are absent are simply not
// registered; resolving a channel against an unregistered kind errors at the
// job boundary.
func NewProviderRegistry(cfg *config.Config, logger types.Logger) (*ProviderRegistry, error) {
	reg := &ProviderRegistry{
		providers: map[types.EmailProviderKind]EmailProvider{},
		logger:    logger,
	}

	if cfg.IsTestMode || cfg.Environment == "local" {
		logger.Info("email providers running in stub mode",
			"environment", cfg.Environment,
			"is_test_mode", cfg.IsTestMode,
		)
		stub := NewStubProvider(logger.With("provider", "stub"))
		reg.providers[types.ProviderMicrosoft365] = stub
		reg.providers[types.ProviderGoogle] = stub
		reg.providers[types.ProviderSMTP] = stub
		return reg, nil
	}

	httpClient := &http.Client{Timeout: cfg.Email.SendTimeout}

	if cfg.Email.GraphClientID != "" {
		graph, err := NewGraphClient(httpClient, GraphClientConfig{
			ClientID:     cfg.Email.GraphClientID,
			ClientSecret: cfg.Email.GraphClientSecret.Unmask(),
			Tenant:       cfg.Email.GraphTenant,
			BaseURL:      cfg.Email.GraphBaseURL,
			Logger:       logger.With("provider", "microsoft365"),
		})
		if err != nil {
			return nil, err
		}
		reg.providers[types.ProviderMicrosoft365] = graph
	}

	if cfg.Email.GmailClientID != "" {
		gmail, err := NewGmailClient(httpClient, GmailClientConfig{
			ClientID:     cfg.Email.GmailClientID,
			ClientSecret: cfg.Email.GmailClientSecret.Unmask(),
			BaseURL:      cfg.Email.GmailBaseURL,
			Logger:       logger.With("provider", "google"),
		})
		if err != nil {
			return nil, err
		}
		reg.providers[types.ProviderGoogle] = gmail
	}

	if cfg.Email.SMTPRelayURL != "" {
		relay, err := NewSMTPRelayClient(httpClient, SMTPRelayConfig{
			RelayURL: cfg.Email.SMTPRelayURL,
			Logger:   logger.With("provider", "smtp"),
		})
		if err != nil {
			return nil, err
		}
		reg.providers[types.ProviderSMTP] = relay
	}

	logger.Info("email provider registry built", "providers", len(reg.providers))
	return reg, nil
}

// ForProvider returns the client registered for the given kind.
func (r *ProviderRegistry) ForProvider(kind types.EmailProviderKind) (EmailProvider, error) {
	provider, ok := r.providers[kind]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeProviderMisconfigured,
			fmt.Sprintf("no email provider registered for kind %q", kind), nil)
	}
	return provider, nil
}

// ForChannel resolves the sender for a channel's provider kind. Implements
// the notification channel's SenderSource.
func (r *ProviderRegistry) ForChannel(ch *types.EmailChannel) (email.Sender, error) {
	return r.ForProvider(ch.Provider)
}

var _ email.SenderSource = (*ProviderRegistry)(nil)
