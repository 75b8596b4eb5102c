package method

import (
	"github.com/roach88/jmap/internal/mail"
	"github.com/roach88/jmap/internal/value"
)

// Result is a sealed interface over the result shapes of every supported
// method family. Adding a family means adding a variant here and a decoder
// entry, never a subtype of an existing variant.
type Result interface {
	result() // Sealed
}

// EchoResult is the result of Core/echo: the arguments sent, unchanged.
type EchoResult struct {
	Arguments value.Object
}

func (EchoResult) result() {}

// GetResult is the result of a Foo/get call.
type GetResult[T any] struct {
	AccountID string   `json:"accountId"`
	State     string   `json:"state"`
	List      []T      `json:"list"`
	NotFound  []string `json:"notFound"`
}

func (GetResult[T]) result() {}

// ChangesResult is the result of a Foo/changes call.
type ChangesResult struct {
	AccountID      string   `json:"accountId"`
	OldState       string   `json:"oldState"`
	NewState       string   `json:"newState"`
	HasMoreChanges bool     `json:"hasMoreChanges"`
	Created        []string `json:"created"`
	Updated        []string `json:"updated"`
	Destroyed      []string `json:"destroyed"`
}

func (ChangesResult) result() {}

// QueryResult is the result of a Foo/query call.
type QueryResult struct {
	AccountID           string   `json:"accountId"`
	QueryState          string   `json:"queryState"`
	CanCalculateChanges bool     `json:"canCalculateChanges"`
	Position            int      `json:"position"`
	IDs                 []string `json:"ids"`
	Total               *int     `json:"total,omitempty"`
	Limit               *int     `json:"limit,omitempty"`
}

func (QueryResult) result() {}

// AddedItem is one insertion reported by Foo/queryChanges.
type AddedItem struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// QueryChangesResult is the result of a Foo/queryChanges call.
type QueryChangesResult struct {
	AccountID     string      `json:"accountId"`
	OldQueryState string      `json:"oldQueryState"`
	NewQueryState string      `json:"newQueryState"`
	Total         *int        `json:"total,omitempty"`
	Removed       []string    `json:"removed"`
	Added         []AddedItem `json:"added"`
}

func (QueryChangesResult) result() {}

// SetResult is the result of a Foo/set call. Updated maps an id to the
// server-changed properties, or nil when nothing else changed.
type SetResult[T any] struct {
	AccountID    string              `json:"accountId"`
	OldState     *string             `json:"oldState,omitempty"`
	NewState     string              `json:"newState"`
	Created      map[string]T        `json:"created,omitempty"`
	Updated      map[string]*T       `json:"updated,omitempty"`
	Destroyed    []string            `json:"destroyed,omitempty"`
	NotCreated   map[string]SetError `json:"notCreated,omitempty"`
	NotUpdated   map[string]SetError `json:"notUpdated,omitempty"`
	NotDestroyed map[string]SetError `json:"notDestroyed,omitempty"`
}

func (SetResult[T]) result() {}

// CopyResult is the result of a Foo/copy call.
type CopyResult[T any] struct {
	FromAccountID string              `json:"fromAccountId"`
	AccountID     string              `json:"accountId"`
	OldState      *string             `json:"oldState,omitempty"`
	NewState      string              `json:"newState"`
	Created       map[string]T        `json:"created,omitempty"`
	NotCreated    map[string]SetError `json:"notCreated,omitempty"`
}

func (CopyResult[T]) result() {}

// ImportResult is the result of Email/import.
type ImportResult[T any] struct {
	AccountID  string              `json:"accountId"`
	OldState   *string             `json:"oldState,omitempty"`
	NewState   string              `json:"newState"`
	Created    map[string]T        `json:"created,omitempty"`
	NotCreated map[string]SetError `json:"notCreated,omitempty"`
}

func (ImportResult[T]) result() {}

// ParseResult is the result of Email/parse.
type ParseResult[T any] struct {
	AccountID   string       `json:"accountId"`
	Parsed      map[string]T `json:"parsed,omitempty"`
	NotParsable []string     `json:"notParsable,omitempty"`
	NotFound    []string     `json:"notFound,omitempty"`
}

func (ParseResult[T]) result() {}

// SearchSnippetResult is the result of SearchSnippet/get.
type SearchSnippetResult struct {
	AccountID string               `json:"accountId"`
	List      []mail.SearchSnippet `json:"list"`
	NotFound  []string             `json:"notFound,omitempty"`
}

func (SearchSnippetResult) result() {}

// BlobCopyResult is the result of Blob/copy.
type BlobCopyResult struct {
	FromAccountID string              `json:"fromAccountId"`
	AccountID     string              `json:"accountId"`
	Copied        map[string]string   `json:"copied,omitempty"`
	NotCopied     map[string]SetError `json:"notCopied,omitempty"`
}

func (BlobCopyResult) result() {}

// As returns res as variant R.
func As[R Result](res Result) (R, bool) {
	r, ok := res.(R)
	return r, ok
}
