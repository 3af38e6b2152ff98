package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

const (
	graphAPIBase   = "https://graph.microsoft.com"
	graphLoginBase = "https://login.microsoftonline.com"

	graphScopes = "offline_access https://graph.microsoft.com/Mail.ReadWrite https://graph.microsoft.com/Mail.Send"
)

// GraphClientConfig holds the settings for creating a GraphClient. BaseURL
// and LoginURL default to the public Microsoft endpoints; tests point them at
// httptest servers.
type GraphClientConfig struct {
	ClientID     string
	ClientSecret string
	Tenant       string
	BaseURL      string
	LoginURL     string
	Logger       types.Logger
}

// GraphClient implements EmailProvider against the Microsoft Graph mail API.
// Channel credentials are delegated OAuth tokens minted against the
// configured application.
type GraphClient struct {
	base         *BaseClient
	baseURL      string
	loginURL     string
	clientID     string
	clientSecret string
	tenant       string
	logger       types.Logger
}

// NewGraphClient creates a GraphClient. Missing application credentials are a
// configuration defect and fail construction immediately.
func NewGraphClient(httpClient *http.Client, cfg GraphClientConfig) (*GraphClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, types.NewAppError(types.ErrCodeProviderMisconfigured,
			"microsoft365 provider requires a client id and secret", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = graphAPIBase
	}
	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = graphLoginBase
	}
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}

	return &GraphClient{
		base:         NewBaseClient(httpClient, "microsoft365", DefaultRetryPolicy()),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		loginURL:     strings.TrimSuffix(loginURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tenant:       tenant,
		logger:       cfg.Logger,
	}, nil
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type graphHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphMessage struct {
	Subject                string           `json:"subject"`
	Body                   graphBody        `json:"body"`
	ToRecipients           []graphRecipient `json:"toRecipients"`
	CcRecipients           []graphRecipient `json:"ccRecipients,omitempty"`
	ReplyTo                []graphRecipient `json:"replyTo,omitempty"`
	InternetMessageHeaders []graphHeader    `json:"internetMessageHeaders,omitempty"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphSendMailRequest struct {
	Message         graphMessage `json:"message"`
	SaveToSentItems bool         `json:"saveToSentItems"`
}

// SendNotification posts the rendered email through the Graph sendMail
// action. Graph returns 202 with no message id, so the threading Message-ID
// is returned when present, else a synthesized one.
func (g *GraphClient) SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return g.sendMail(ctx, ch, out)
}

// SendMessage posts an agent reply. Same wire call as SendNotification.
func (g *GraphClient) SendMessage(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return g.sendMail(ctx, ch, out)
}

func (g *GraphClient) sendMail(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	token, err := channelToken(ch)
	if err != nil {
		return "", err
	}

	msg := graphMessage{
		Subject: out.Subject,
		Body:    graphBody{ContentType: "HTML", Content: out.HTML},
		ToRecipients: []graphRecipient{
			{EmailAddress: graphEmailAddress{Name: out.ToName, Address: out.ToEmail}},
		},
		ReplyTo: []graphRecipient{
			{EmailAddress: graphEmailAddress{Address: out.ReplyTo}},
		},
		InternetMessageHeaders: graphThreadingHeaders(out),
	}
	for _, cc := range out.CC {
		msg.CcRecipients = append(msg.CcRecipients, graphRecipient{
			EmailAddress: graphEmailAddress{Address: cc},
		})
	}

	body, err := json.Marshal(graphSendMailRequest{Message: msg, SaveToSentItems: true})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal graph sendMail payload", err)
	}

	reqURL := fmt.Sprintf("%s/v1.0/users/%s/sendMail", g.baseURL, url.PathEscape(ch.EmailAddress))
	resp, err := g.doJSON(ctx, http.MethodPost, reqURL, token, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", graphErrorResponse(resp)
	}

	if out.Threading.MessageID != "" {
		return out.Threading.MessageID, nil
	}
	return fmt.Sprintf("<%s@ticketdesk>", uuid.NewString()), nil
}

// graphThreadingHeaders maps the outbound header set onto Graph's custom
// internet message headers. Zero threading produces only the ticket marker.
func graphThreadingHeaders(out types.OutboundEmail) []graphHeader {
	headers := []graphHeader{}
	if out.TicketNumber != "" {
		headers = append(headers, graphHeader{Name: "X-Ticketdesk-Ticket", Value: out.TicketNumber})
	}
	th := out.Threading
	if th.IsZero() {
		return headers
	}
	headers = append(headers,
		graphHeader{Name: "X-Ticketdesk-In-Reply-To", Value: th.InReplyTo},
		graphHeader{Name: "X-Ticketdesk-References", Value: th.References},
		graphHeader{Name: "X-Ticketdesk-Thread-Topic", Value: th.ThreadTopic},
		graphHeader{Name: "X-Ticketdesk-Thread-Index", Value: th.ThreadIndex},
	)
	return headers
}

type graphListResponse struct {
	Value []graphInboundMessage `json:"value"`
}

type graphInboundMessage struct {
	ID                string           `json:"id"`
	ConversationID    string           `json:"conversationId"`
	InternetMessageID string           `json:"internetMessageId"`
	Subject           string           `json:"subject"`
	From              graphRecipient   `json:"from"`
	ToRecipients      []graphRecipient `json:"toRecipients"`
	CcRecipients      []graphRecipient `json:"ccRecipients"`
	Body              graphBody        `json:"body"`
	ReceivedDateTime  time.Time        `json:"receivedDateTime"`
}

// FetchMessages lists inbox messages received after since, oldest first.
func (g *GraphClient) FetchMessages(ctx context.Context, ch *types.EmailChannel, since time.Time) ([]*FetchedMessage, error) {
	token, err := channelToken(ch)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	query.Set("$orderby", "receivedDateTime asc")
	query.Set("$top", "50")
	reqURL := fmt.Sprintf("%s/v1.0/users/%s/mailFolders/inbox/messages?%s",
		g.baseURL, url.PathEscape(ch.EmailAddress), query.Encode())

	resp, err := g.doJSON(ctx, http.MethodGet, reqURL, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, graphErrorResponse(resp)
	}

	var list graphListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode graph message list", err)
	}

	out := make([]*FetchedMessage, 0, len(list.Value))
	for _, m := range list.Value {
		fetched := &FetchedMessage{
			ProviderMessageID: m.ID,
			ThreadID:          m.ConversationID,
			InternetMessageID: m.InternetMessageID,
			FromEmail:         m.From.EmailAddress.Address,
			FromName:          m.From.EmailAddress.Name,
			Subject:           m.Subject,
			ReceivedAt:        m.ReceivedDateTime,
		}
		for _, r := range m.ToRecipients {
			fetched.To = append(fetched.To, r.EmailAddress.Address)
		}
		for _, r := range m.CcRecipients {
			fetched.CC = append(fetched.CC, r.EmailAddress.Address)
		}
		if strings.EqualFold(m.Body.ContentType, "html") {
			fetched.HTMLBody = m.Body.Content
		} else {
			fetched.TextBody = m.Body.Content
		}
		out = append(out, fetched)
	}
	return out, nil
}

// ArchiveMessage moves the message to the well-known archive folder. Graph
// reissues the message id on move, so the new id is returned.
func (g *GraphClient) ArchiveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) (string, error) {
	return g.MoveMessage(ctx, ch, providerMessageID, "archive")
}

// MoveMessage moves the message to the given folder and returns the reissued
// message id.
func (g *GraphClient) MoveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID, folderID string) (string, error) {
	token, err := channelToken(ch)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"destinationId": folderID})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal graph move payload", err)
	}

	reqURL := fmt.Sprintf("%s/v1.0/users/%s/messages/%s/move",
		g.baseURL, url.PathEscape(ch.EmailAddress), url.PathEscape(providerMessageID))
	resp, err := g.doJSON(ctx, http.MethodPost, reqURL, token, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", graphErrorResponse(resp)
	}

	var moved struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&moved); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode graph move response", err)
	}
	if moved.ID == "" {
		return providerMessageID, nil
	}
	return moved.ID, nil
}

// DeleteMessage removes the message from the mailbox.
func (g *GraphClient) DeleteMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) error {
	token, err := channelToken(ch)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/v1.0/users/%s/messages/%s",
		g.baseURL, url.PathEscape(ch.EmailAddress), url.PathEscape(providerMessageID))
	resp, err := g.doJSON(ctx, http.MethodDelete, reqURL, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return graphErrorResponse(resp)
	}
	return nil
}

// TestConnection reads the inbox folder metadata to verify the token works.
func (g *GraphClient) TestConnection(ctx context.Context, ch *types.EmailChannel) error {
	token, err := channelToken(ch)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/v1.0/users/%s/mailFolders/inbox?$select=id",
		g.baseURL, url.PathEscape(ch.EmailAddress))
	resp, err := g.doJSON(ctx, http.MethodGet, reqURL, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return graphErrorResponse(resp)
	}
	return nil
}

// GetAuthorizationURL builds the Microsoft identity platform consent URL.
func (g *GraphClient) GetAuthorizationURL(state, redirectURI string) (string, error) {
	query := url.Values{}
	query.Set("client_id", g.clientID)
	query.Set("response_type", "code")
	query.Set("redirect_uri", redirectURI)
	query.Set("response_mode", "query")
	query.Set("scope", graphScopes)
	query.Set("state", state)
	return fmt.Sprintf("%s/%s/oauth2/v2.0/authorize?%s", g.loginURL, g.tenant, query.Encode()), nil
}

// HandleCallback exchanges the consent code for a channel token set.
func (g *GraphClient) HandleCallback(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("scope", graphScopes)
	return g.tokenRequest(ctx, form)
}

// RefreshToken exchanges the channel's refresh token for a fresh token set.
func (g *GraphClient) RefreshToken(ctx context.Context, ch *types.EmailChannel) (*TokenSet, error) {
	refresh := ch.RefreshToken.Unmask()
	if refresh == "" {
		return nil, types.NewAppError(types.ErrCodeProviderMisconfigured,
			"email channel has no refresh token", nil)
	}

	form := url.Values{}
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refresh)
	form.Set("scope", graphScopes)
	return g.tokenRequest(ctx, form)
}

func (g *GraphClient) tokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	reqURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", g.loginURL, g.tenant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create graph token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, graphErrorResponse(resp)
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode graph token response", err)
	}

	return &TokenSet{
		AccessToken:  types.SecretString(token.AccessToken),
		RefreshToken: types.SecretString(token.RefreshToken),
		ExpiresAt:    time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}

func (g *GraphClient) doJSON(ctx context.Context, method, reqURL, token string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create graph request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.base.Do(req)
}

// graphErrorResponse maps a non-success Graph status to a domain error. 403
// means the mailbox is blocked from sending; everything else in 4xx is a
// provider-side rejection.
func graphErrorResponse(resp *http.Response) error {
	excerpt := readErrorExcerpt(resp.Body)
	if resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("graph rejected the send: %s", excerpt), nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("graph returned %d: %s", resp.StatusCode, excerpt), nil)
}

var _ EmailProvider = (*GraphClient)(nil)
