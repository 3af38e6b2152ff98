package external

import (
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"ticketdesk/internal/types"
)

// errorExcerptLimit bounds how much of a provider error body makes it into a
// domain error message.
const errorExcerptLimit = 256

// channelToken extracts the channel's access token. An empty token is a
// configuration defect on the channel, raised immediately rather than sent to
// the provider as a guaranteed 401.
func channelToken(ch *types.EmailChannel) (string, error) {
	token := ch.AccessToken.Unmask()
	if token == "" {
		return "", types.NewAppError(types.ErrCodeProviderMisconfigured,
			"email channel has no access token", nil)
	}
	return token, nil
}

// readErrorExcerpt reads a bounded prefix of an error response body for
// inclusion in error messages.
func readErrorExcerpt(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, errorExcerptLimit))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// splitAddress parses a single RFC 5322 address into (name, email). A value
// that fails to parse is treated as a bare address.
func splitAddress(value string) (name, email string) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", strings.TrimSpace(value)
	}
	return addr.Name, addr.Address
}

// splitAddressList parses a comma-separated address list into bare emails.
func splitAddressList(value string) []string {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

// parseMillis converts a unix-milliseconds string into a UTC time.
func parseMillis(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
