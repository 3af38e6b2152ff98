package email

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketdesk/internal/types"
)

func threadedTicket() *types.Ticket {
	return &types.Ticket{
		ID:                     "tkt_1",
		EmailOriginalMessageID: "<orig-123@customer.com>",
		EmailThreadID:          "thread-abc",
	}
}

func TestBuildThreadHeaders_Disabled(t *testing.T) {
	h := BuildThreadHeaders(threadedTicket(), false)
	assert.True(t, h.IsZero(), "shouldThread=false must produce an empty header set")
}

func TestBuildThreadHeaders_NoOriginalMessageID(t *testing.T) {
	tk := &types.Ticket{ID: "tkt_2", EmailThreadID: "thread-abc"}
	h := BuildThreadHeaders(tk, true)
	assert.True(t, h.IsZero(), "no recorded original message id means a fresh thread")
}

func TestBuildThreadHeaders_NilTicket(t *testing.T) {
	assert.True(t, BuildThreadHeaders(nil, true).IsZero())
}

func TestBuildThreadHeaders_ReplyChain(t *testing.T) {
	h := BuildThreadHeaders(threadedTicket(), true)

	assert.Equal(t, "<orig-123@customer.com>", h.InReplyTo)
	assert.Equal(t, "<orig-123@customer.com>", h.References,
		"the head of References is the original customer message id")

	require.NotEmpty(t, h.MessageID)
	assert.True(t, strings.HasPrefix(h.MessageID, "<"))
	assert.True(t, strings.HasSuffix(h.MessageID, "@ticketdesk>"))
}

func TestBuildThreadHeaders_OutlookTokensDeterministic(t *testing.T) {
	first := BuildThreadHeaders(threadedTicket(), true)
	second := BuildThreadHeaders(threadedTicket(), true)

	assert.Equal(t, first.ThreadTopic, second.ThreadTopic)
	assert.Equal(t, first.ThreadIndex, second.ThreadIndex)

	// The outgoing email's own Message-ID is unique per send.
	assert.NotEqual(t, first.MessageID, second.MessageID)
}

func TestBuildThreadHeaders_ThreadIndexShape(t *testing.T) {
	h := BuildThreadHeaders(threadedTicket(), true)

	raw, err := base64.StdEncoding.DecodeString(h.ThreadIndex)
	require.NoError(t, err)
	assert.Len(t, raw, threadIndexBytes)
}

func TestBuildThreadHeaders_DifferentThreadsDiffer(t *testing.T) {
	a := BuildThreadHeaders(threadedTicket(), true)

	other := threadedTicket()
	other.EmailThreadID = "thread-xyz"
	b := BuildThreadHeaders(other, true)

	assert.NotEqual(t, a.ThreadTopic, b.ThreadTopic)
	assert.NotEqual(t, a.ThreadIndex, b.ThreadIndex)
}

func TestBuildThreadHeaders_TopicFallsBackToMessageID(t *testing.T) {
	tk := &types.Ticket{ID: "tkt_3", EmailOriginalMessageID: "<orig-9@c.com>"}
	h := BuildThreadHeaders(tk, true)

	assert.NotEmpty(t, h.ThreadTopic)
	assert.NotEmpty(t, h.ThreadIndex)
}
