// Package parser interprets fediverse posts as tip bot commands. It is
// a pure component: no network calls, no persistence, one typed result
// (or typed failure) per post.
package parser

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
	domainerrors "github.com/xnotip/tipbot_service/internal/domain/errors"
	"github.com/xnotip/tipbot_service/pkg/nanocrypto"
)

const (
	keywordNonCustodial = "non-custodial"
	keywordSplit        = "split"
	keywordBalance      = "balance"
	keywordAddress      = "address"
	keywordWithdraw     = "withdraw"
)

// ParseTipStatus interprets a status as a tip command. The first
// paragraph is tokenized by whitespace; the first token that parses as
// a nonzero number is the amount, and the non-custodial and split
// keywords select mode and split policy. Recipient resolution follows
// the mention/reply tie-break rule implemented by TipIntent.
func ParseTipStatus(status *entities.Status) (*entities.TipIntent, error) {
	text := FirstParagraphText(status.Content)
	if text == "" {
		return nil, domainerrors.MalformedCommandError("post has no readable first paragraph")
	}

	tokens := strings.Fields(text)
	amount, ok := firstNonzeroNumber(tokens)
	if !ok {
		return nil, domainerrors.MalformedCommandError("post has no amount")
	}

	intent := &entities.TipIntent{
		Amount:           amount,
		NonCustodial:     hasToken(tokens, keywordNonCustodial),
		SplitEvenly:      hasToken(tokens, keywordSplit),
		MentionIDs:       mentionIDs(status),
		ReplyToAccountID: status.InReplyToAccountID,
	}

	if err := intent.Validate(); err != nil {
		return nil, domainerrors.MalformedCommandError(err.Error())
	}
	if intent.NonCustodial && len(intent.Recipients()) > 1 {
		return nil, domainerrors.ErrUnsupportedMultiRecipientNonCustodial
	}
	return intent, nil
}

// ParseSignatureReply extracts a signature token from a reply to a
// "please sign" status. The first well-formed 128 hex character token
// wins.
func ParseSignatureReply(status *entities.Status) (string, error) {
	text := StripHTML(status.Content)
	for _, token := range strings.Fields(text) {
		if nanocrypto.CheckSignature(token) {
			return strings.ToUpper(token), nil
		}
	}
	return "", domainerrors.MalformedCommandError("reply contains no signature")
}

// ParseDirectCommand interprets a direct message to the bot. Supported
// commands: "balance", "address", and "withdraw [amount] [address]"
// (full balance to the profile address when amount or address are
// omitted).
func ParseDirectCommand(status *entities.Status) (*entities.DirectCommand, error) {
	tokens := strings.Fields(StripHTML(status.Content))

	var cmd *entities.DirectCommand
	for _, token := range tokens {
		if cmd == nil {
			switch strings.ToLower(token) {
			case keywordBalance:
				return &entities.DirectCommand{Kind: entities.DirectCommandBalance}, nil
			case keywordAddress:
				return &entities.DirectCommand{Kind: entities.DirectCommandAddress}, nil
			case keywordWithdraw:
				cmd = &entities.DirectCommand{Kind: entities.DirectCommandWithdraw}
			}
			continue
		}
		if cmd.Address == "" && nanocrypto.CheckAddress(token) {
			cmd.Address = nanocrypto.StripURIScheme(token)
		}
		if cmd.Amount == nil {
			if amount, err := decimal.NewFromString(token); err == nil && amount.IsPositive() {
				cmd.Amount = &amount
			}
		}
	}
	if cmd == nil {
		return nil, domainerrors.MalformedCommandError("unrecognized direct command")
	}
	return cmd, nil
}

// FirstParagraphText returns the plain text of the first <p> element in
// an HTML fragment, or "" when there is none. Fediverse servers wrap
// every post in paragraph tags, so a missing paragraph means a post
// the bot cannot read.
func FirstParagraphText(fragment string) string {
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	p := findElement(node, "p")
	if p == nil {
		return ""
	}
	var b strings.Builder
	collectText(p, &b)
	return strings.TrimSpace(b.String())
}

// StripHTML returns the plain text content of an HTML fragment.
// Profile field values and DM bodies arrive as markup.
func StripHTML(fragment string) string {
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	var b strings.Builder
	collectText(node, &b)
	return strings.TrimSpace(b.String())
}

func firstNonzeroNumber(tokens []string) (decimal.Decimal, bool) {
	for _, token := range tokens {
		d, err := decimal.NewFromString(token)
		if err == nil && !d.IsZero() {
			return d, true
		}
	}
	return decimal.Zero, false
}

func hasToken(tokens []string, keyword string) bool {
	for _, token := range tokens {
		if token == keyword {
			return true
		}
	}
	return false
}

func mentionIDs(status *entities.Status) []string {
	ids := make([]string, 0, len(status.Mentions))
	for _, m := range status.Mentions {
		ids = append(ids, m.ID)
	}
	return ids
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	// Line breaks separate tokens even though they carry no text.
	if n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p") {
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
