package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticketdesk/internal/types"
)

const (
	gmailAPIBase   = "https://gmail.googleapis.com"
	gmailAuthBase  = "https://accounts.google.com/o/oauth2/v2/auth"
	gmailTokenBase = "https://oauth2.googleapis.com"

	gmailScopes = "https://www.googleapis.com/auth/gmail.modify"
)

// GmailClientConfig holds the settings for creating a GmailClient.
type GmailClientConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Logger       types.Logger
}

// GmailClient implements EmailProvider against the Gmail REST API. Outbound
// mail is built as a raw RFC 2822 message so the full threading header set
// goes out verbatim, which is what makes Gmail-side conversation grouping
// work.
type GmailClient struct {
	base         *BaseClient
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	logger       types.Logger
}

// NewGmailClient creates a GmailClient. Missing application credentials fail
// construction immediately.
func NewGmailClient(httpClient *http.Client, cfg GmailClientConfig) (*GmailClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, types.NewAppError(types.ErrCodeProviderMisconfigured,
			"google provider requires a client id and secret", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = gmailAPIBase
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = gmailTokenBase
	}

	return &GmailClient{
		base:         NewBaseClient(httpClient, "google", DefaultRetryPolicy()),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		tokenURL:     strings.TrimSuffix(tokenURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       cfg.Logger,
	}, nil
}

// SendNotification sends the rendered email as a raw RFC 2822 message.
func (g *GmailClient) SendNotification(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return g.sendRaw(ctx, ch, out)
}

// SendMessage sends an agent reply. Same wire call as SendNotification.
func (g *GmailClient) SendMessage(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	return g.sendRaw(ctx, ch, out)
}

func (g *GmailClient) sendRaw(ctx context.Context, ch *types.EmailChannel, out types.OutboundEmail) (string, error) {
	token, err := channelToken(ch)
	if err != nil {
		return "", err
	}

	raw := base64.URLEncoding.EncodeToString(buildRFC2822(ch, out))
	body, err := json.Marshal(map[string]string{"raw": raw})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal gmail send payload", err)
	}

	reqURL := g.baseURL + "/gmail/v1/users/me/messages/send"
	resp, err := g.doJSON(ctx, http.MethodPost, reqURL, token, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", gmailErrorResponse(resp)
	}

	var sent struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode gmail send response", err)
	}
	return sent.ID, nil
}

// buildRFC2822 assembles the raw message. Header order follows common MUA
// output; the threading block is emitted only when present.
func buildRFC2822(ch *types.EmailChannel, out types.OutboundEmail) []byte {
	var b bytes.Buffer

	writeHeader := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}

	from := ch.EmailAddress
	if ch.DisplayName != "" {
		from = fmt.Sprintf("%s <%s>", ch.DisplayName, ch.EmailAddress)
	}
	to := out.ToEmail
	if out.ToName != "" {
		to = fmt.Sprintf("%s <%s>", out.ToName, out.ToEmail)
	}

	writeHeader("From", from)
	writeHeader("To", to)
	writeHeader("Cc", strings.Join(out.CC, ", "))
	writeHeader("Reply-To", out.ReplyTo)
	writeHeader("Subject", out.Subject)
	writeHeader("X-Ticketdesk-Ticket", out.TicketNumber)

	th := out.Threading
	writeHeader("Message-ID", th.MessageID)
	writeHeader("In-Reply-To", th.InReplyTo)
	writeHeader("References", th.References)
	writeHeader("Thread-Topic", th.ThreadTopic)
	writeHeader("Thread-Index", th.ThreadIndex)

	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", `text/html; charset="UTF-8"`)
	b.WriteString("\r\n")
	b.WriteString(out.HTML)

	return b.Bytes()
}

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailMessage struct {
	ID           string `json:"id"`
	ThreadID     string `json:"threadId"`
	Snippet      string `json:"snippet"`
	InternalDate string `json:"internalDate"`
	Payload      struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// FetchMessages lists inbox messages received after since. Gmail's list call
// returns only ids, so each message is hydrated with a metadata read.
func (g *GmailClient) FetchMessages(ctx context.Context, ch *types.EmailChannel, since time.Time) ([]*FetchedMessage, error) {
	token, err := channelToken(ch)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("in:inbox after:%d", since.Unix()))
	query.Set("maxResults", "50")
	reqURL := g.baseURL + "/gmail/v1/users/me/messages?" + query.Encode()

	resp, err := g.doJSON(ctx, http.MethodGet, reqURL, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, gmailErrorResponse(resp)
	}

	var list struct {
		Messages []gmailMessageRef `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode gmail message list", err)
	}

	out := make([]*FetchedMessage, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.getMessage(ctx, token, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (g *GmailClient) getMessage(ctx context.Context, token, id string) (*FetchedMessage, error) {
	query := url.Values{}
	query.Set("format", "metadata")
	for _, h := range []string{"Subject", "From", "To", "Cc", "Message-ID"} {
		query.Add("metadataHeaders", h)
	}
	reqURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s?%s", g.baseURL, url.PathEscape(id), query.Encode())

	resp, err := g.doJSON(ctx, http.MethodGet, reqURL, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, gmailErrorResponse(resp)
	}

	var msg gmailMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode gmail message", err)
	}

	fetched := &FetchedMessage{
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ThreadID,
		TextBody:          msg.Snippet,
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			fetched.Subject = h.Value
		case "from":
			fetched.FromName, fetched.FromEmail = splitAddress(h.Value)
		case "to":
			fetched.To = splitAddressList(h.Value)
		case "cc":
			fetched.CC = splitAddressList(h.Value)
		case "message-id":
			fetched.InternetMessageID = h.Value
		}
	}
	if ms, err := parseMillis(msg.InternalDate); err == nil {
		fetched.ReceivedAt = ms
	}
	return fetched, nil
}

// ArchiveMessage removes the inbox label. Gmail keeps message ids stable
// across label changes, so the same id comes back.
func (g *GmailClient) ArchiveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) (string, error) {
	return g.modifyLabels(ctx, ch, providerMessageID, nil, []string{"INBOX"})
}

// MoveMessage applies the target label and removes the inbox label.
func (g *GmailClient) MoveMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID, folderID string) (string, error) {
	return g.modifyLabels(ctx, ch, providerMessageID, []string{folderID}, []string{"INBOX"})
}

func (g *GmailClient) modifyLabels(ctx context.Context, ch *types.EmailChannel, id string, add, remove []string) (string, error) {
	token, err := channelToken(ch)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string][]string{
		"addLabelIds":    add,
		"removeLabelIds": remove,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal gmail modify payload", err)
	}

	reqURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s/modify", g.baseURL, url.PathEscape(id))
	resp, err := g.doJSON(ctx, http.MethodPost, reqURL, token, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", gmailErrorResponse(resp)
	}

	var modified gmailMessageRef
	if err := json.NewDecoder(resp.Body).Decode(&modified); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode gmail modify response", err)
	}
	if modified.ID == "" {
		return id, nil
	}
	return modified.ID, nil
}

// DeleteMessage moves the message to trash rather than hard-deleting, which
// matches what the dashboard promises tenants.
func (g *GmailClient) DeleteMessage(ctx context.Context, ch *types.EmailChannel, providerMessageID string) error {
	token, err := channelToken(ch)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/gmail/v1/users/me/messages/%s/trash", g.baseURL, url.PathEscape(providerMessageID))
	resp, err := g.doJSON(ctx, http.MethodPost, reqURL, token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gmailErrorResponse(resp)
	}
	return nil
}

// TestConnection reads the account profile to verify the token works.
func (g *GmailClient) TestConnection(ctx context.Context, ch *types.EmailChannel) error {
	token, err := channelToken(ch)
	if err != nil {
		return err
	}

	resp, err := g.doJSON(ctx, http.MethodGet, g.baseURL+"/gmail/v1/users/me/profile", token, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gmailErrorResponse(resp)
	}
	return nil
}

// GetAuthorizationURL builds the Google consent URL. access_type=offline with
// forced consent is required to receive a refresh token.
func (g *GmailClient) GetAuthorizationURL(state, redirectURI string) (string, error) {
	query := url.Values{}
	query.Set("client_id", g.clientID)
	query.Set("response_type", "code")
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", gmailScopes)
	query.Set("access_type", "offline")
	query.Set("prompt", "consent")
	query.Set("state", state)
	return gmailAuthBase + "?" + query.Encode(), nil
}

// HandleCallback exchanges the consent code for a channel token set.
func (g *GmailClient) HandleCallback(ctx context.Context, code, redirectURI string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	return g.tokenRequest(ctx, form)
}

// RefreshToken exchanges the channel's refresh token for a fresh access
// token. Google does not rotate refresh tokens, so the stored one is carried
// forward.
func (g *GmailClient) RefreshToken(ctx context.Context, ch *types.EmailChannel) (*TokenSet, error) {
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

	tokens, err := g.tokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken.Unmask() == "" {
		tokens.RefreshToken = ch.RefreshToken
	}
	return tokens, nil
}

func (g *GmailClient) tokenRequest(ctx context.Context, form url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create gmail token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, gmailErrorResponse(resp)
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to decode gmail token response", err)
	}

	return &TokenSet{
		AccessToken:  types.SecretString(token.AccessToken),
		RefreshToken: types.SecretString(token.RefreshToken),
		ExpiresAt:    time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}

func (g *GmailClient) doJSON(ctx context.Context, method, reqURL, token string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create gmail request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.base.Do(req)
}

// gmailErrorResponse maps a non-success Gmail status to a domain error.
func gmailErrorResponse(resp *http.Response) error {
	excerpt := readErrorExcerpt(resp.Body)
	if resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(types.ErrCodeEmailBlocked,
			fmt.Sprintf("gmail rejected the send: %s", excerpt), nil)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("gmail returned %d: %s", resp.StatusCode, excerpt), nil)
}

var _ EmailProvider = (*GmailClient)(nil)
