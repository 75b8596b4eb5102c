package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	tests := []struct {
		method string
		want   string
	}{
		{"Core/echo", Core},
		{"Blob/copy", Core},
		{"Mailbox/query", Mail},
		{"Mailbox/get", Mail},
		{"Email/import", Mail},
		{"Identity/get", Submission},
		{"EmailSubmission/set", Submission},
		{"VacationResponse/get", VacationResponse},
		{"ContactCard/query", Contacts},
		{"CalendarEvent/get", Calendars},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, ok := r.CapabilityFor(tt.method)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapabilityForUnknownMethod(t *testing.T) {
	_, ok := Default().CapabilityFor("Frobnicator/get")
	assert.False(t, ok)
}

func TestCoreIsNotAccountScoped(t *testing.T) {
	core, ok := Default().Lookup(Core)
	require.True(t, ok)
	assert.False(t, core.AccountScoped)

	mail, ok := Default().Lookup(Mail)
	require.True(t, ok)
	assert.True(t, mail.AccountScoped, "accountScoped defaults to true")
}

func TestCapabilitiesDeclarationOrder(t *testing.T) {
	caps := Default().Capabilities()
	require.NotEmpty(t, caps)
	assert.Equal(t, Core, caps[0].URI)
	assert.Equal(t, Mail, caps[1].URI)
}

func TestLookupReturnsCopy(t *testing.T) {
	c, ok := Default().Lookup(Mail)
	require.True(t, ok)
	c.Methods[0] = "Mutated/get"

	again, _ := Default().Lookup(Mail)
	assert.NotEqual(t, "Mutated/get", again.Methods[0])
}

func TestDefaultLimits(t *testing.T) {
	d := Default().DefaultLimits()
	assert.Equal(t, 16, d.MaxCallsInRequest)
	assert.Equal(t, 500, d.MaxObjectsInGet)
	assert.Equal(t, int64(10000000), d.MaxSizeRequest)
	assert.Contains(t, d.CollationAlgorithms, "i;ascii-casemap")
}

func TestWithDefaults(t *testing.T) {
	l := CoreLimits{MaxCallsInRequest: 4}.WithDefaults(Default().DefaultLimits())
	assert.Equal(t, 4, l.MaxCallsInRequest)
	assert.Equal(t, 500, l.MaxObjectsInGet)
}

func TestLoadRejectsInvalidMethodName(t *testing.T) {
	src := []byte(`
#Capability: {
	uri: =~"^urn:"
	name: string
	accountScoped: bool | *true
	methods: [...=~"^[A-Z][A-Za-z]*/[a-z][A-Za-z]*$"]
}
capabilities: [...#Capability]
capabilities: [{uri: "urn:ietf:params:jmap:core", name: "core", methods: ["not a method"]}]
defaultLimits: {}
`)
	_, err := Load(src)
	require.Error(t, err)

	var le *LoadError
	assert.True(t, errors.As(err, &le))
}

func TestLoadRejectsDuplicateMethod(t *testing.T) {
	src := []byte(`
capabilities: [
	{uri: "urn:ietf:params:jmap:core", name: "core", accountScoped: false, methods: ["Core/echo"]},
	{uri: "urn:example:other", name: "other", accountScoped: true, methods: ["Core/echo"]},
]
defaultLimits: {}
`)
	_, err := Load(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `method "Core/echo" declared by both`)
}

func TestLoadRequiresCore(t *testing.T) {
	src := []byte(`
capabilities: [{uri: "urn:example:other", name: "other", accountScoped: true, methods: []}]
defaultLimits: {}
`)
	_, err := Load(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "core capability must be declared")
}
