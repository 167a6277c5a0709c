package parser_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/internal/domain/services/parser"
)

func status(content string, replyTo string, mentionIDs ...string) *entities.Status {
	s := &entities.Status{
		ID:                 "st1",
		Content:            content,
		InReplyToAccountID: replyTo,
	}
	for _, id := range mentionIDs {
		s.Mentions = append(s.Mentions, entities.Mention{ID: id, Acct: "user" + id})
	}
	return s
}

func TestParseTipStatusAmount(t *testing.T) {
	intent, err := parser.ParseTipStatus(status("<p>tipping 5 to you</p>", "u1"))
	require.NoError(t, err)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("5")))
	assert.False(t, intent.NonCustodial)
	assert.False(t, intent.SplitEvenly)
	assert.Equal(t, []string{"u1"}, intent.Recipients())
}

func TestParseTipStatusDecimalAmount(t *testing.T) {
	intent, err := parser.ParseTipStatus(status("<p>0.05 for your troubles</p>", "u1"))
	require.NoError(t, err)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("0.05")))
}

func TestParseTipStatusSkipsZeroTokens(t *testing.T) {
	intent, err := parser.ParseTipStatus(status("<p>0 3 nano</p>", "u1"))
	require.NoError(t, err)
	assert.True(t, intent.Amount.Equal(decimal.RequireFromString("3")))
}

func TestParseTipStatusKeywords(t *testing.T) {
	intent, err := parser.ParseTipStatus(status("<p>5 non-custodial</p>", "u1"))
	require.NoError(t, err)
	assert.True(t, intent.NonCustodial)

	intent, err = parser.ParseTipStatus(status("<p>10 split</p>", "", "u3", "u4"))
	require.NoError(t, err)
	assert.True(t, intent.SplitEvenly)
}

func TestParseTipStatusMalformed(t *testing.T) {
	_, err := parser.ParseTipStatus(status("<p>hello world</p>", "u1"))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)

	_, err = parser.ParseTipStatus(status("", "u1"))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)

	// Valid amount but no resolvable recipient.
	_, err = parser.ParseTipStatus(status("<p>5</p>", ""))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)
}

func TestParseTipStatusOnlyFirstParagraph(t *testing.T) {
	// The amount in a later paragraph must not count.
	_, err := parser.ParseTipStatus(status("<p>hello</p><p>5</p>", "u1"))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)
}

func TestRecipientTieBreak(t *testing.T) {
	// Reply where the first mention is the replied-to identity and
	// there is more than one mention: use the full mention list.
	intent, err := parser.ParseTipStatus(status("<p>5</p>", "u1", "u1", "u2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, intent.Recipients())

	// Reply where mentions do not start with the reply target: the
	// reply target wins.
	intent, err = parser.ParseTipStatus(status("<p>5</p>", "u1", "u2", "u3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, intent.Recipients())

	// Single mention in a reply to that same identity: reply target wins.
	intent, err = parser.ParseTipStatus(status("<p>5</p>", "u1", "u1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, intent.Recipients())

	// No reply target: mentions win.
	intent, err = parser.ParseTipStatus(status("<p>5</p>", "", "u2", "u3"))
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, intent.Recipients())
}

func TestNonCustodialSingleRecipientOnly(t *testing.T) {
	_, err := parser.ParseTipStatus(status("<p>5 non-custodial</p>", "", "u2", "u3"))
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedMultiRecipientNonCustodial)
	assert.NotErrorIs(t, err, domainerrors.ErrMalformedCommand)
}

func TestParseSignatureReply(t *testing.T) {
	sig := strings.Repeat("ab", 64)
	got, err := parser.ParseSignatureReply(status("<p>here you go "+sig+"</p>", "bot"))
	require.NoError(t, err)
	assert.Equal(t, strings.ToUpper(sig), got)

	_, err = parser.ParseSignatureReply(status("<p>no signature here</p>", "bot"))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)

	// Too short to be a signature.
	_, err = parser.ParseSignatureReply(status("<p>deadbeef</p>", "bot"))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)
}

func TestParseDirectCommand(t *testing.T) {
	cmd, err := parser.ParseDirectCommand(status("<p>@tipbot balance</p>", ""))
	require.NoError(t, err)
	assert.Equal(t, entities.DirectCommandBalance, cmd.Kind)

	cmd, err = parser.ParseDirectCommand(status("<p>@tipbot address please</p>", ""))
	require.NoError(t, err)
	assert.Equal(t, entities.DirectCommandAddress, cmd.Kind)

	cmd, err = parser.ParseDirectCommand(status("<p>@tipbot withdraw</p>", ""))
	require.NoError(t, err)
	assert.Equal(t, entities.DirectCommandWithdraw, cmd.Kind)
	assert.Nil(t, cmd.Amount)
	assert.Empty(t, cmd.Address)

	addr := "nano_3i1aq1cchnmbn9x5rsbap8b15akfh7wj7pwskuzi7ahz8oq6cobd99d4r3b7"
	cmd, err = parser.ParseDirectCommand(status("<p>withdraw 2.5 "+addr+"</p>", ""))
	require.NoError(t, err)
	require.NotNil(t, cmd.Amount)
	assert.True(t, cmd.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, addr, cmd.Address)

	_, err = parser.ParseDirectCommand(status("<p>hello there</p>", ""))
	assert.ErrorIs(t, err, domainerrors.ErrMalformedCommand)
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "one two", parser.StripHTML("<p>one</p><p>two</p>"))
	assert.Equal(t, "plain", parser.StripHTML("plain"))
}
