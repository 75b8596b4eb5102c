package testutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/jmap/internal/capability"
	"github.com/roach88/jmap/internal/session"
)

// AccountID is the primary account of every fixture session.
const AccountID = "u1"

// SessionOptions shapes a fixture session document.
type SessionOptions struct {
	State             string
	APIURL            string
	Capabilities      []string // beyond core; nil means mail and submission
	MaxCallsInRequest int
	MaxObjectsInGet   int
	MaxSizeRequest    int64
}

// SessionDocument renders a session document for opts.
//
// Zero fields take fixture defaults: state "s1", apiUrl
// https://jmap.example.com/api/, and the core limits of the default registry.
func SessionDocument(opts SessionOptions) []byte {
	if opts.State == "" {
		opts.State = "s1"
	}
	if opts.APIURL == "" {
		opts.APIURL = "https://jmap.example.com/api/"
	}
	if opts.Capabilities == nil {
		opts.Capabilities = []string{capability.Mail, capability.Submission}
	}

	limits := capability.CoreLimits{
		MaxCallsInRequest: opts.MaxCallsInRequest,
		MaxObjectsInGet:   opts.MaxObjectsInGet,
		MaxSizeRequest:    opts.MaxSizeRequest,
	}.WithDefaults(capability.Default().DefaultLimits())

	caps := map[string]any{capability.Core: limits}
	acctCaps := map[string]any{}
	primary := map[string]string{}
	for _, uri := range opts.Capabilities {
		caps[uri] = map[string]any{}
		acctCaps[uri] = map[string]any{}
		primary[uri] = AccountID
	}

	doc := map[string]any{
		"capabilities": caps,
		"accounts": map[string]any{
			AccountID: map[string]any{
				"name":                "alice@example.com",
				"isPersonal":          true,
				"isReadOnly":          false,
				"accountCapabilities": acctCaps,
			},
		},
		"primaryAccounts": primary,
		"username":        "alice@example.com",
		"apiUrl":          opts.APIURL,
		"downloadUrl":     "https://jmap.example.com/download/{accountId}/{blobId}/{name}?accept={type}",
		"uploadUrl":       "https://jmap.example.com/upload/{accountId}/",
		"eventSourceUrl":  "https://jmap.example.com/eventsource/?types={types}&closeafter={closeafter}&ping={ping}",
		"state":           opts.State,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// Snapshot discovers a fixture session.
func Snapshot(t testing.TB, opts SessionOptions) *session.Snapshot {
	t.Helper()
	snap, err := session.Discover(SessionDocument(opts), capability.Default())
	require.NoError(t, err)
	return snap
}

// Store returns a session store already holding a fixture snapshot.
func Store(t testing.TB, opts SessionOptions) *session.Store {
	t.Helper()
	st := session.NewStore(capability.Default())
	_, err := st.Refresh(SessionDocument(opts))
	require.NoError(t, err)
	return st
}
