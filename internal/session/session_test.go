package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/jmap/internal/capability"
)

const sessionDoc = `{
  "capabilities": {
    "urn:ietf:params:jmap:core": {
      "maxSizeUpload": 50000000,
      "maxConcurrentUpload": 4,
      "maxSizeRequest": 10000000,
      "maxConcurrentRequests": 4,
      "maxCallsInRequest": 8,
      "maxObjectsInGet": 100,
      "maxObjectsInSet": 100,
      "collationAlgorithms": ["i;ascii-casemap"]
    },
    "urn:ietf:params:jmap:mail": {},
    "urn:ietf:params:jmap:submission": {}
  },
  "accounts": {
    "u1": {
      "name": "alice@example.com",
      "isPersonal": true,
      "isReadOnly": false,
      "accountCapabilities": {
        "urn:ietf:params:jmap:mail": {},
        "urn:ietf:params:jmap:submission": {}
      }
    }
  },
  "primaryAccounts": {
    "urn:ietf:params:jmap:mail": "u1",
    "urn:ietf:params:jmap:submission": "u1"
  },
  "username": "alice@example.com",
  "apiUrl": "https://jmap.example.com/api/",
  "downloadUrl": "https://jmap.example.com/download/{accountId}/{blobId}/{name}?accept={type}",
  "uploadUrl": "https://jmap.example.com/upload/{accountId}/",
  "eventSourceUrl": "https://jmap.example.com/eventsource/?types={types}&closeafter={closeafter}&ping={ping}",
  "state": "s1"
}`

func TestDiscover(t *testing.T) {
	snap, err := Discover([]byte(sessionDoc), capability.Default())
	require.NoError(t, err)

	assert.Equal(t, "https://jmap.example.com/api/", snap.APIURL)
	assert.Equal(t, "s1", snap.State)
	assert.Equal(t, "alice@example.com", snap.Username)
	assert.True(t, snap.Supports(capability.Mail))
	assert.False(t, snap.Supports(capability.Contacts))
	assert.Equal(t, []string{capability.Core, capability.Mail, capability.Submission}, snap.CapabilityURIs())

	id, ok := snap.PrimaryAccount(capability.Mail)
	require.True(t, ok)
	assert.Equal(t, "u1", id)

	acct, ok := snap.Account("u1")
	require.True(t, ok)
	assert.Equal(t, "u1", acct.ID)
	assert.True(t, acct.IsPersonal)
	assert.True(t, acct.HasCapability(capability.Submission))
	assert.Equal(t, []string{"u1"}, snap.AccountIDs())

	assert.Equal(t, 8, snap.Limits.MaxCallsInRequest)
	assert.Equal(t, 100, snap.Limits.MaxObjectsInGet)
}

func TestDiscoverFillsDefaultLimits(t *testing.T) {
	doc := `{
		"capabilities": {"urn:ietf:params:jmap:core": {}},
		"accounts": {},
		"primaryAccounts": {},
		"apiUrl": "https://example.com/api",
		"state": "x"
	}`
	snap, err := Discover([]byte(doc), capability.Default())
	require.NoError(t, err)

	assert.Equal(t, capability.Default().DefaultLimits(), snap.Limits)
}

func TestDiscoverRejects(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"not json", `{`, ""},
		{"not object", `[]`, ""},
		{"no capabilities", `{"apiUrl":"x","state":"s"}`, "capabilities"},
		{"no core", `{"capabilities":{"urn:ietf:params:jmap:mail":{}},"apiUrl":"x","state":"s"}`, "capabilities"},
		{"wrong limit type", `{"capabilities":{"urn:ietf:params:jmap:core":{"maxCallsInRequest":"many"}},"apiUrl":"x","state":"s"}`, "capabilities.urn:ietf:params:jmap:core"},
		{"no apiUrl", `{"capabilities":{"urn:ietf:params:jmap:core":{}},"state":"s"}`, "apiUrl"},
		{"no state", `{"capabilities":{"urn:ietf:params:jmap:core":{}},"apiUrl":"x"}`, "state"},
		{"dangling primary", `{"capabilities":{"urn:ietf:params:jmap:core":{}},"apiUrl":"x","state":"s","primaryAccounts":{"urn:ietf:params:jmap:mail":"nope"}}`, "primaryAccounts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Discover([]byte(tt.doc), capability.Default())
			require.Error(t, err)

			var de *DocumentError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.field, de.Field)
			assert.Contains(t, err.Error(), ErrCodeInvalidSessionDocument)
		})
	}
}

func TestURLTemplates(t *testing.T) {
	snap, err := Discover([]byte(sessionDoc), capability.Default())
	require.NoError(t, err)

	dl, err := snap.DownloadURLFor("u1", "B42", "report q1.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://jmap.example.com/download/u1/B42/report%20q1.pdf?accept=application%2Fpdf", dl)

	ul, err := snap.UploadURLFor("u1")
	require.NoError(t, err)
	assert.Equal(t, "https://jmap.example.com/upload/u1/", ul)

	es, err := snap.EventSourceURLFor([]string{"Email", "Mailbox"}, "", 30)
	require.NoError(t, err)
	assert.Equal(t, "https://jmap.example.com/eventsource/?types=Email%2CMailbox&closeafter=no&ping=30", es)

	es, err = snap.EventSourceURLFor(nil, "state", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://jmap.example.com/eventsource/?types=%2A&closeafter=state&ping=0", es)
}

func TestDiscoverUntemplatedEventSource(t *testing.T) {
	doc := `{
		"capabilities": {"urn:ietf:params:jmap:core": {}},
		"apiUrl": "https://api.fastmail.com/jmap/api/",
		"eventSourceUrl": "https://api.fastmail.com/jmap/event/",
		"state": "s"
	}`
	snap, err := Discover([]byte(doc), capability.Default())
	require.NoError(t, err)

	es, err := snap.EventSourceURLFor([]string{"Email", "Mailbox"}, "", 30)
	require.NoError(t, err)
	assert.Equal(t, "https://api.fastmail.com/jmap/event/?closeafter=no&ping=30&types=Email%2CMailbox", es)
}

func TestEventSourceQueryExpansion(t *testing.T) {
	doc := `{
		"capabilities": {"urn:ietf:params:jmap:core": {}},
		"apiUrl": "https://x/api/",
		"eventSourceUrl": "https://x/events{?types,closeafter,ping}",
		"state": "s"
	}`
	snap, err := Discover([]byte(doc), capability.Default())
	require.NoError(t, err)

	es, err := snap.EventSourceURLFor([]string{"Email"}, "state", 5)
	require.NoError(t, err)
	assert.Equal(t, "https://x/events?types=Email&closeafter=state&ping=5", es)
}

func TestBadBlobTemplatesFailOnUse(t *testing.T) {
	tests := []struct {
		name      string
		uploadURL string
	}{
		{"missing variable", "https://x/upload/"},
		{"unterminated", "https://x/{accountId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"capabilities":{"urn:ietf:params:jmap:core":{}},"apiUrl":"x","state":"s","uploadUrl":"` + tt.uploadURL + `"}`
			snap, err := Discover([]byte(doc), capability.Default())
			require.NoError(t, err, "batching does not need the upload endpoint")

			_, err = snap.UploadURLFor("u1")
			require.Error(t, err)
			var de *DocumentError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "uploadUrl", de.Field)
		})
	}
}

func TestURLTemplateMissingEndpoint(t *testing.T) {
	doc := `{"capabilities":{"urn:ietf:params:jmap:core":{}},"apiUrl":"x","state":"s"}`
	snap, err := Discover([]byte(doc), capability.Default())
	require.NoError(t, err)

	_, err = snap.UploadURLFor("u1")
	assert.Error(t, err)
}

func TestStoreRefreshReplacesSnapshot(t *testing.T) {
	st := NewStore(nil)
	assert.Nil(t, st.Snapshot())

	first, err := st.Refresh([]byte(sessionDoc))
	require.NoError(t, err)
	assert.Same(t, first, st.Snapshot())

	_, err = st.Refresh([]byte(`{"capabilities":{}}`))
	require.Error(t, err)
	assert.Same(t, first, st.Snapshot(), "failed refresh keeps the previous snapshot")

	second, err := st.Refresh([]byte(sessionDoc))
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, st.Snapshot())
	assert.Equal(t, "s1", first.State, "old holders keep their snapshot")
}

func TestStoreConcurrentReaders(t *testing.T) {
	st := NewStore(capability.Default())
	_, err := st.Refresh([]byte(sessionDoc))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			snap := st.Snapshot()
			assert.Equal(t, "s1", snap.State)
		}()
		go func() {
			defer wg.Done()
			_, _ = st.Refresh([]byte(sessionDoc))
		}()
	}
	wg.Wait()
}
