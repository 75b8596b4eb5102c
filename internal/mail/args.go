package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/jmap/internal/graph"
	"github.com/roach88/jmap/internal/value"
)

// MailboxFilter is a Mailbox/query FilterCondition. Zero fields are left out.
type MailboxFilter struct {
	ParentID     *string
	Name         string
	Role         string
	HasAnyRole   *bool
	IsSubscribed *bool
}

func (f MailboxFilter) value() value.Object {
	obj := value.Object{}
	if f.ParentID != nil {
		obj["parentId"] = value.String(*f.ParentID)
	}
	if f.Name != "" {
		obj["name"] = value.String(f.Name)
	}
	if f.Role != "" {
		obj["role"] = value.String(f.Role)
	}
	if f.HasAnyRole != nil {
		obj["hasAnyRole"] = value.Bool(*f.HasAnyRole)
	}
	if f.IsSubscribed != nil {
		obj["isSubscribed"] = value.Bool(*f.IsSubscribed)
	}
	return obj
}

// QueryMailboxes adds a Mailbox/query call.
func QueryMailboxes(b *graph.Builder, filter MailboxFilter) (graph.CallID, error) {
	args := graph.Arguments{}
	if f := filter.value(); len(f) > 0 {
		args["filter"] = graph.Lit(f)
	}
	return b.AddCall("Mailbox/query", args)
}

// GetFromQuery adds a /get call whose ids are the /ids of the query call
// source. Properties limit the returned fields; none means all.
func GetFromQuery(b *graph.Builder, method string, source graph.CallID, properties ...string) (graph.CallID, error) {
	ids, err := b.Ref(source, "/ids")
	if err != nil {
		return "", err
	}
	args := graph.Arguments{"ids": ids}
	if len(properties) > 0 {
		args["properties"] = graph.Lit(value.Strings(properties...))
	}
	return b.AddCall(method, args)
}

// GetAll adds a /get call with a null ids argument, which fetches every
// object of the type.
func GetAll(b *graph.Builder, method string, properties ...string) (graph.CallID, error) {
	args := graph.Arguments{"ids": graph.Lit(value.Null{})}
	if len(properties) > 0 {
		args["properties"] = graph.Lit(value.Strings(properties...))
	}
	return b.AddCall(method, args)
}

// InboxLookup names the calls added by AddInboxLookup.
type InboxLookup struct {
	Query      graph.CallID
	Mailboxes  graph.CallID
	Identities graph.CallID
}

// AddInboxLookup adds the three calls needed before sending a message:
// the inbox query, a Mailbox/get of its result, and every identity.
func AddInboxLookup(b *graph.Builder) (InboxLookup, error) {
	var l InboxLookup
	var err error

	if l.Query, err = QueryMailboxes(b, MailboxFilter{Role: RoleInbox}); err != nil {
		return l, err
	}
	if l.Mailboxes, err = GetFromQuery(b, "Mailbox/get", l.Query, "name", "parentId", "role"); err != nil {
		return l, err
	}
	if l.Identities, err = GetAll(b, "Identity/get", "id", "name", "email", "replyTo"); err != nil {
		return l, err
	}
	return l, nil
}

// EmailImport describes one message blob to import.
type EmailImport struct {
	BlobID     string
	MailboxIDs []string
	Keywords   []string
	ReceivedAt *time.Time
}

func (imp EmailImport) value() value.Object {
	mailboxes := value.Object{}
	for _, id := range imp.MailboxIDs {
		mailboxes[id] = value.Bool(true)
	}
	obj := value.Object{
		"blobId":     value.String(imp.BlobID),
		"mailboxIds": mailboxes,
	}
	if len(imp.Keywords) > 0 {
		kw := value.Object{}
		for _, k := range imp.Keywords {
			kw[k] = value.Bool(true)
		}
		obj["keywords"] = kw
	}
	if imp.ReceivedAt != nil {
		obj["receivedAt"] = value.String(imp.ReceivedAt.UTC().Format(time.RFC3339))
	}
	return obj
}

// ImportEmail adds an Email/import call creating one message under
// creationID.
func ImportEmail(b *graph.Builder, creationID string, imp EmailImport) (graph.CallID, error) {
	if imp.BlobID == "" {
		return "", &graph.BuildError{Code: graph.ErrCodeInvalidArgument, Method: "Email/import", Message: "blobId is required"}
	}
	if len(imp.MailboxIDs) == 0 {
		return "", &graph.BuildError{Code: graph.ErrCodeInvalidArgument, Method: "Email/import", Message: "at least one mailbox is required"}
	}
	return b.AddCall("Email/import", graph.Arguments{
		"emails": graph.Lit(value.Object{creationID: imp.value()}),
	})
}

// Submission describes one EmailSubmission to create.
type Submission struct {
	IdentityID string
	// EmailID is a server id, or "#" + the creation id of an Email created
	// earlier in the same batch.
	EmailID string
	// ClearDraft removes $draft from the email once the submission is created.
	ClearDraft bool
}

// SubmitEmail adds an EmailSubmission/set call creating one submission
// under creationID.
func SubmitEmail(b *graph.Builder, creationID string, sub Submission) (graph.CallID, error) {
	if sub.IdentityID == "" || sub.EmailID == "" {
		return "", &graph.BuildError{Code: graph.ErrCodeInvalidArgument, Method: "EmailSubmission/set", Message: "identityId and emailId are required"}
	}
	args := graph.Arguments{
		"create": graph.Lit(value.Object{creationID: value.Object{
			"identityId": value.String(sub.IdentityID),
			"emailId":    value.String(sub.EmailID),
		}}),
	}
	if sub.ClearDraft {
		args["onSuccessUpdateEmail"] = graph.Lit(value.Object{
			"#" + creationID: value.Object{"keywords/" + KeywordDraft: value.Null{}},
		})
	}
	return b.AddCall("EmailSubmission/set", args)
}

// Message is a plain-text message to compose.
type Message struct {
	From    EmailAddress
	To      EmailAddress
	Subject string
	Body    string
}

// Bytes renders m as an RFC 5322 message with CRLF line endings.
func (m Message) Bytes() ([]byte, error) {
	for _, h := range []string{m.From.String(), m.To.String(), m.Subject} {
		if strings.ContainsAny(h, "\r\n") {
			return nil, fmt.Errorf("header value %q contains a line break", h)
		}
	}
	body := strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n")

	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", m.To)
	fmt.Fprintf(&sb, "From: %s\r\n", m.From)
	fmt.Fprintf(&sb, "Subject: %s\r\n", m.Subject)
	sb.WriteString("\r\n")
	sb.WriteString(body)
	sb.WriteString("\r\n")
	return []byte(sb.String()), nil
}
