// Package session parses JMAP session documents into immutable snapshots and
// holds the current snapshot for a logical connection.
//
// A Snapshot is never mutated after Discover returns it. Store.Refresh parses
// a new document completely and only then swaps the pointer, so a reader
// always sees either the whole old snapshot or the whole new one.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/roach88/jmap/internal/capability"
)

// ErrCodeInvalidSessionDocument is the code carried by every DocumentError.
const ErrCodeInvalidSessionDocument = "INVALID_SESSION_DOCUMENT"

// DocumentError reports a session document that does not match the
// expected structure.
type DocumentError struct {
	Field   string
	Message string
	Err     error
}

func (e *DocumentError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrCodeInvalidSessionDocument, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s: %s", ErrCodeInvalidSessionDocument, e.Field, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// Account is one account the authenticated user can access.
type Account struct {
	ID                  string                     `json:"-"`
	Name                string                     `json:"name"`
	IsPersonal          bool                       `json:"isPersonal"`
	IsReadOnly          bool                       `json:"isReadOnly"`
	AccountCapabilities map[string]json.RawMessage `json:"accountCapabilities"`
}

// HasCapability reports whether the account supports uri.
func (a Account) HasCapability(uri string) bool {
	_, ok := a.AccountCapabilities[uri]
	return ok
}

// Snapshot is an immutable view of one session document.
type Snapshot struct {
	capabilities    map[string]json.RawMessage
	accounts        map[string]Account
	primaryAccounts map[string]string

	Username       string
	APIURL         string
	DownloadURL    string
	UploadURL      string
	EventSourceURL string
	State          string
	Limits         capability.CoreLimits
}

// document mirrors the wire shape of a session resource.
type document struct {
	Capabilities    map[string]json.RawMessage `json:"capabilities"`
	Accounts        map[string]Account         `json:"accounts"`
	PrimaryAccounts map[string]string          `json:"primaryAccounts"`
	Username        string                     `json:"username"`
	APIURL          string                     `json:"apiUrl"`
	DownloadURL     string                     `json:"downloadUrl"`
	UploadURL       string                     `json:"uploadUrl"`
	EventSourceURL  string                     `json:"eventSourceUrl"`
	State           string                     `json:"state"`
}

// Discover parses a raw session document.
//
// Missing core limits fall back to the defaults declared in reg; a limit of
// the wrong JSON type, a missing core capability, an empty apiUrl or a
// primary account that is not listed in accounts all fail with a
// DocumentError.
func Discover(raw []byte, reg *capability.Registry) (*Snapshot, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, &DocumentError{Message: "not a session object", Err: err}
	}

	if doc.Capabilities == nil {
		return nil, &DocumentError{Field: "capabilities", Message: "missing"}
	}
	coreRaw, ok := doc.Capabilities[capability.Core]
	if !ok {
		return nil, &DocumentError{Field: "capabilities", Message: fmt.Sprintf("missing %s", capability.Core)}
	}

	var limits capability.CoreLimits
	if err := json.Unmarshal(coreRaw, &limits); err != nil {
		return nil, &DocumentError{Field: "capabilities." + capability.Core, Message: "malformed core limits", Err: err}
	}
	limits = limits.WithDefaults(reg.DefaultLimits())

	if doc.APIURL == "" {
		return nil, &DocumentError{Field: "apiUrl", Message: "missing"}
	}
	if doc.State == "" {
		return nil, &DocumentError{Field: "state", Message: "missing"}
	}

	accounts := make(map[string]Account, len(doc.Accounts))
	for id, acct := range doc.Accounts {
		acct.ID = id
		accounts[id] = acct
	}
	for uri, id := range doc.PrimaryAccounts {
		if _, ok := accounts[id]; !ok {
			return nil, &DocumentError{
				Field:   "primaryAccounts",
				Message: fmt.Sprintf("%s names unknown account %q", uri, id),
			}
		}
	}

	return &Snapshot{
		capabilities:    doc.Capabilities,
		accounts:        accounts,
		primaryAccounts: maps.Clone(doc.PrimaryAccounts),
		Username:        doc.Username,
		APIURL:          doc.APIURL,
		DownloadURL:     doc.DownloadURL,
		UploadURL:       doc.UploadURL,
		EventSourceURL:  doc.EventSourceURL,
		State:           doc.State,
		Limits:          limits,
	}, nil
}

// Supports reports whether the server declared capability uri.
func (s *Snapshot) Supports(uri string) bool {
	_, ok := s.capabilities[uri]
	return ok
}

// CapabilityURIs returns the declared capability URIs, sorted.
func (s *Snapshot) CapabilityURIs() []string {
	return slices.Sorted(maps.Keys(s.capabilities))
}

// Capability returns the raw capability object for uri.
func (s *Snapshot) Capability(uri string) (json.RawMessage, bool) {
	raw, ok := s.capabilities[uri]
	return slices.Clone(raw), ok
}

// PrimaryAccount returns the primary account id for capability uri.
func (s *Snapshot) PrimaryAccount(uri string) (string, bool) {
	id, ok := s.primaryAccounts[uri]
	return id, ok
}

// Account returns the account with the given id.
func (s *Snapshot) Account(id string) (Account, bool) {
	a, ok := s.accounts[id]
	return a, ok
}

// AccountIDs returns every account id, sorted.
func (s *Snapshot) AccountIDs() []string {
	return slices.Sorted(maps.Keys(s.accounts))
}

// Store holds the current Snapshot for one logical connection.
//
// Thread-safety: Snapshot() and Refresh() are safe for concurrent use.
// Readers hold on to the *Snapshot they got; a later Refresh never changes it.
type Store struct {
	current  atomic.Pointer[Snapshot]
	registry *capability.Registry
}

// NewStore creates a Store with no snapshot.
func NewStore(reg *capability.Registry) *Store {
	if reg == nil {
		reg = capability.Default()
	}
	return &Store{registry: reg}
}

// Snapshot returns the current snapshot, or nil before the first discovery.
func (st *Store) Snapshot() *Snapshot {
	return st.current.Load()
}

// Refresh parses raw and replaces the current snapshot.
// On error the current snapshot is left untouched.
func (st *Store) Refresh(raw []byte) (*Snapshot, error) {
	snap, err := Discover(raw, st.registry)
	if err != nil {
		return nil, err
	}
	st.current.Store(snap)
	return snap, nil
}

// Replace installs an already-parsed snapshot.
func (st *Store) Replace(snap *Snapshot) {
	st.current.Store(snap)
}
