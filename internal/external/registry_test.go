package external

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/config"
	"ticketdesk/internal/types"
)

func TestNewProviderRegistry_StubModeCoversAllKinds(t *testing.T) {
	cfg := &config.Config{Environment: "local"}

	reg, err := NewProviderRegistry(cfg, testLogger{})
	require.NoError(t, err)

	for _, kind := range []types.EmailProviderKind{
		types.ProviderMicrosoft365,
		types.ProviderGoogle,
		types.ProviderSMTP,
	} {
		provider, err := reg.ForProvider(kind)
		require.NoError(t, err)
		_, ok := provider.(*StubProvider)
		assert.True(t, ok, "local mode must resolve %q to the stub", kind)
	}
}

func TestNewProviderRegistry_ProductionRegistersConfiguredKinds(t *testing.T) {
	cfg := &config.Config{Environment: "prod"}
	cfg.Email.GraphClientID = "app-id"
	cfg.Email.GraphClientSecret = types.SecretString("app-secret")

	reg, err := NewProviderRegistry(cfg, testLogger{})
	require.NoError(t, err)

	_, err = reg.ForProvider(types.ProviderMicrosoft365)
	assert.NoError(t, err)

	_, err = reg.ForProvider(types.ProviderGoogle)
	require.Error(t, err, "unconfigured kinds are not registered")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeProviderMisconfigured, appErr.Code)
}

func TestProviderRegistry_ForChannelResolvesByKind(t *testing.T) {
	cfg := &config.Config{IsTestMode: true, Environment: "prod"}

	reg, err := NewProviderRegistry(cfg, testLogger{})
	require.NoError(t, err)

	sender, err := reg.ForChannel(&types.EmailChannel{
		ID:       "ch_1",
		Provider: types.ProviderGoogle,
	})
	require.NoError(t, err)
	assert.NotNil(t, sender)
}

func TestProviderRegistry_ForChannelUnknownKind(t *testing.T) {
	cfg := &config.Config{IsTestMode: true}
	reg, err := NewProviderRegistry(cfg, testLogger{})
	require.NoError(t, err)

	_, err = reg.ForChannel(&types.EmailChannel{Provider: types.EmailProviderKind("carrier_pigeon")})
	assert.Error(t, err)
}

func TestProviderConstruction_EmptyCredentials(t *testing.T) {
	_, err := NewGraphClient(http.DefaultClient, GraphClientConfig{})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeProviderMisconfigured, appErr.Code)

	_, err = NewGmailClient(http.DefaultClient, GmailClientConfig{ClientID: "id"})
	assert.Error(t, err, "a client id without a secret is still misconfigured")

	_, err = NewSMTPRelayClient(http.DefaultClient, SMTPRelayConfig{})
	assert.Error(t, err)
}
