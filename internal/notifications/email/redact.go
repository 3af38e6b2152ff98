package email

import "strings"

// RedactEmail masks a recipient address before it reaches a log line. Only
// the first character of the local part survives: "dana@acme.com" logs as
// "d***@acme.com". Anything without an "@" is masked wholesale, since a
// malformed value may still be someone's PII.
func RedactEmail(address string) string {
	if address == "" {
		return ""
	}

	at := strings.IndexByte(address, '@')
	if at < 0 {
		return "***"
	}

	domain := address[at+1:]
	if at == 0 {
		return "***@" + domain
	}
	return address[:1] + "***@" + domain
}
