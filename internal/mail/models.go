// Package mail holds the typed object models of the mail, submission and
// vacation-response capabilities (RFC 8621), and argument helpers for the
// calls that operate on them.
package mail

import (
	"net/mail"
	"time"
)

// Mailbox roles (RFC 8621 section 2, IANA "IMAP Mailbox Name Attributes").
const (
	RoleInbox   = "inbox"
	RoleDrafts  = "drafts"
	RoleSent    = "sent"
	RoleTrash   = "trash"
	RoleJunk    = "junk"
	RoleArchive = "archive"
)

// Keywords with protocol meaning.
const (
	KeywordDraft    = "$draft"
	KeywordSeen     = "$seen"
	KeywordFlagged  = "$flagged"
	KeywordAnswered = "$answered"
)

type Mailbox struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	ParentID      *string        `json:"parentId,omitempty"`
	Role          *string        `json:"role,omitempty"`
	SortOrder     int            `json:"sortOrder,omitempty"`
	TotalEmails   int            `json:"totalEmails,omitempty"`
	UnreadEmails  int            `json:"unreadEmails,omitempty"`
	TotalThreads  int            `json:"totalThreads,omitempty"`
	UnreadThreads int            `json:"unreadThreads,omitempty"`
	MyRights      *MailboxRights `json:"myRights,omitempty"`
	IsSubscribed  bool           `json:"isSubscribed,omitempty"`
}

// HasRole reports whether the mailbox has the given role.
func (m Mailbox) HasRole(role string) bool {
	return m.Role != nil && *m.Role == role
}

type MailboxRights struct {
	MayReadItems   bool `json:"mayReadItems"`
	MayAddItems    bool `json:"mayAddItems"`
	MayRemoveItems bool `json:"mayRemoveItems"`
	MaySetSeen     bool `json:"maySetSeen"`
	MaySetKeywords bool `json:"maySetKeywords"`
	MayCreateChild bool `json:"mayCreateChild"`
	MayRename      bool `json:"mayRename"`
	MayDelete      bool `json:"mayDelete"`
	MaySubmit      bool `json:"maySubmit"`
}

type Thread struct {
	ID       string   `json:"id,omitempty"`
	EmailIDs []string `json:"emailIds,omitempty"`
}

// EmailAddress is a name/address pair. Name is empty when the header had
// no display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address for a message header. A display name is
// quoted, or RFC 2047 encoded when it is not printable ASCII.
func (a EmailAddress) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

type Email struct {
	ID            string                    `json:"id,omitempty"`
	BlobID        string                    `json:"blobId,omitempty"`
	ThreadID      string                    `json:"threadId,omitempty"`
	MailboxIDs    map[string]bool           `json:"mailboxIds,omitempty"`
	Keywords      map[string]bool           `json:"keywords,omitempty"`
	Size          int64                     `json:"size,omitempty"`
	ReceivedAt    *time.Time                `json:"receivedAt,omitempty"`
	MessageID     []string                  `json:"messageId,omitempty"`
	InReplyTo     []string                  `json:"inReplyTo,omitempty"`
	References    []string                  `json:"references,omitempty"`
	Sender        []EmailAddress            `json:"sender,omitempty"`
	From          []EmailAddress            `json:"from,omitempty"`
	To            []EmailAddress            `json:"to,omitempty"`
	Cc            []EmailAddress            `json:"cc,omitempty"`
	Bcc           []EmailAddress            `json:"bcc,omitempty"`
	ReplyTo       []EmailAddress            `json:"replyTo,omitempty"`
	Subject       string                    `json:"subject,omitempty"`
	SentAt        *time.Time                `json:"sentAt,omitempty"`
	HasAttachment bool                      `json:"hasAttachment,omitempty"`
	Preview       string                    `json:"preview,omitempty"`
	BodyValues    map[string]EmailBodyValue `json:"bodyValues,omitempty"`
	TextBody      []EmailBodyPart           `json:"textBody,omitempty"`
	HTMLBody      []EmailBodyPart           `json:"htmlBody,omitempty"`
	Attachments   []EmailBodyPart           `json:"attachments,omitempty"`
}

type EmailBodyPart struct {
	PartID      string `json:"partId,omitempty"`
	BlobID      string `json:"blobId,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Type        string `json:"type,omitempty"`
	Charset     string `json:"charset,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Name        string `json:"name,omitempty"`
	CID         string `json:"cid,omitempty"`
}

type EmailBodyValue struct {
	Value             string `json:"value"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
}

type Identity struct {
	ID            string         `json:"id,omitempty"`
	Name          string         `json:"name,omitempty"`
	Email         string         `json:"email,omitempty"`
	ReplyTo       []EmailAddress `json:"replyTo,omitempty"`
	Bcc           []EmailAddress `json:"bcc,omitempty"`
	TextSignature string         `json:"textSignature,omitempty"`
	HTMLSignature string         `json:"htmlSignature,omitempty"`
	MayDelete     bool           `json:"mayDelete,omitempty"`
}

// Matches reports whether the identity sends as addr. An empty name on addr
// matches any identity name.
func (i Identity) Matches(addr EmailAddress) bool {
	if i.Email != addr.Email {
		return false
	}
	return addr.Name == "" || addr.Name == i.Name
}

type EmailSubmission struct {
	ID             string                    `json:"id,omitempty"`
	IdentityID     string                    `json:"identityId,omitempty"`
	EmailID        string                    `json:"emailId,omitempty"`
	ThreadID       string                    `json:"threadId,omitempty"`
	Envelope       *Envelope                 `json:"envelope,omitempty"`
	SendAt         *time.Time                `json:"sendAt,omitempty"`
	UndoStatus     string                    `json:"undoStatus,omitempty"`
	DeliveryStatus map[string]DeliveryStatus `json:"deliveryStatus,omitempty"`
	DSNBlobIDs     []string                  `json:"dsnBlobIds,omitempty"`
	MDNBlobIDs     []string                  `json:"mdnBlobIds,omitempty"`
}

// Undo statuses of an EmailSubmission.
const (
	UndoPending  = "pending"
	UndoFinal    = "final"
	UndoCanceled = "canceled"
)

type Envelope struct {
	MailFrom Address   `json:"mailFrom"`
	RcptTo   []Address `json:"rcptTo"`
}

// Address is an SMTP envelope address with optional parameters.
type Address struct {
	Email      string             `json:"email"`
	Parameters map[string]*string `json:"parameters,omitempty"`
}

type DeliveryStatus struct {
	SMTPReply string `json:"smtpReply"`
	Delivered string `json:"delivered"`
	Displayed string `json:"displayed"`
}

type VacationResponse struct {
	ID        string     `json:"id,omitempty"`
	IsEnabled bool       `json:"isEnabled"`
	FromDate  *time.Time `json:"fromDate,omitempty"`
	ToDate    *time.Time `json:"toDate,omitempty"`
	Subject   *string    `json:"subject,omitempty"`
	TextBody  *string    `json:"textBody,omitempty"`
	HTMLBody  *string    `json:"htmlBody,omitempty"`
}

// VacationResponseID is the id of the singleton VacationResponse object.
const VacationResponseID = "singleton"

type SearchSnippet struct {
	EmailID string  `json:"emailId"`
	Subject *string `json:"subject,omitempty"`
	Preview *string `json:"preview,omitempty"`
}

type PushSubscription struct {
	ID               string     `json:"id,omitempty"`
	DeviceClientID   string     `json:"deviceClientId,omitempty"`
	URL              string     `json:"url,omitempty"`
	Keys             *PushKeys  `json:"keys,omitempty"`
	VerificationCode string     `json:"verificationCode,omitempty"`
	Expires          *time.Time `json:"expires,omitempty"`
	Types            []string   `json:"types,omitempty"`
}

type PushKeys struct {
	P256DH string `json:"p256dh"`
	Auth   string `json:"auth"`
}
