package entities

import "time"

// Status models the subset of a fediverse status the bot reads.
type Status struct {
	ID                 string        `json:"id"`
	CreatedAt          time.Time     `json:"created_at"`
	Content            string        `json:"content"` // HTML
	Visibility         string        `json:"visibility"`
	InReplyToID        string        `json:"in_reply_to_id"`
	InReplyToAccountID string        `json:"in_reply_to_account_id"`
	Account            SocialAccount `json:"account"`
	Mentions           []Mention     `json:"mentions"`
	Tags               []Tag         `json:"tags"`
}

// HasTag reports whether the status carries the given hashtag.
func (s *Status) HasTag(name string) bool {
	for _, t := range s.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// SocialAccount is a fediverse account as returned by the accounts API.
type SocialAccount struct {
	ID          string         `json:"id"`
	Username    string         `json:"username"`
	Acct        string         `json:"acct"`
	DisplayName string         `json:"display_name"`
	Fields      []ProfileField `json:"fields"`
}

// Handle renders the account as a mentionable @handle.
func (a *SocialAccount) Handle() string {
	return "@" + a.Acct
}

// ProfileField is one name/value metadata row on a profile.
type ProfileField struct {
	Name  string `json:"name"`
	Value string `json:"value"` // HTML
}

// Mention is an account referenced in a status body.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

// Tag is a hashtag attached to a status.
type Tag struct {
	Name string `json:"name"`
}

// Notification is an event on the bot's own notification stream.
type Notification struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"` // mention, follow, ...
	Account SocialAccount `json:"account"`
	Status  *Status       `json:"status"`
}

// Visibility values used when posting replies.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityDirect   = "direct"
)
