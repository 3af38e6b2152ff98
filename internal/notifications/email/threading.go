package email

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"ticketdesk/internal/types"
)

// threadIndexBytes is the length of an Outlook Thread-Index token: a 6-byte
// timestamp block plus a 16-byte conversation GUID. We fill all 22 bytes from
// a digest of the ticket's thread anchors so repeated sends for the same
// ticket correlate into one conversation.
const threadIndexBytes = 22

// BuildThreadHeaders computes the threading header set for an outgoing
// notification email.
//
// When shouldThread is false, or the ticket records no original customer
// message id, every header is empty and the email starts a fresh thread.
// When true: InReplyTo and the head of References equal the stored original
// message id (the Gmail/RFC 2822 convention), and ThreadTopic/ThreadIndex are
// derived deterministically from the ticket's thread anchors so Outlook
// recognizes repeated sends as the same conversation.
func BuildThreadHeaders(t *types.Ticket, shouldThread bool) types.ThreadHeaders {
	if !shouldThread || t == nil || t.EmailOriginalMessageID == "" {
		return types.ThreadHeaders{}
	}

	return types.ThreadHeaders{
		MessageID:   newMessageID(),
		InReplyTo:   t.EmailOriginalMessageID,
		References:  t.EmailOriginalMessageID,
		ThreadTopic: threadTopic(t),
		ThreadIndex: threadIndex(t),
	}
}

// newMessageID generates the RFC 2822 Message-ID for the outgoing email
// itself. Unlike the correlation tokens it is unique per send.
func newMessageID() string {
	return fmt.Sprintf("<%s@ticketdesk>", uuid.NewString())
}

// threadTopic derives the Outlook Thread-Topic correlation token. The exact
// value is opaque to us; it only has to be deterministic per ticket thread.
func threadTopic(t *types.Ticket) string {
	anchor := t.EmailThreadID
	if anchor == "" {
		anchor = t.EmailOriginalMessageID
	}
	sum := sha256.Sum256([]byte(anchor))
	return "ticket-" + hex.EncodeToString(sum[:8])
}

// threadIndex derives the Outlook Thread-Index token: base64 over a 22-byte
// digest of both thread anchors.
func threadIndex(t *types.Ticket) string {
	h := sha256.New()
	h.Write([]byte(t.EmailThreadID))
	h.Write([]byte{0})
	h.Write([]byte(t.EmailOriginalMessageID))
	sum := h.Sum(nil)
	return base64.StdEncoding.EncodeToString(sum[:threadIndexBytes])
}
