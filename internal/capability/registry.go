// Package capability declares the protocol capabilities this client
// understands, which methods each capability owns, and the core limits that
// apply when a server leaves them out.
//
// The declaration is a CUE document embedded in the binary. Loading it
// validates every entry against the #Capability schema before any batch is
// built, so a malformed declaration fails at startup rather than mid-request.
package capability

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed registry.cue
var registryCUE []byte

// Capability URIs pinned to RFC 8620 / RFC 8621.
const (
	Core             = "urn:ietf:params:jmap:core"
	Mail             = "urn:ietf:params:jmap:mail"
	Submission       = "urn:ietf:params:jmap:submission"
	VacationResponse = "urn:ietf:params:jmap:vacationresponse"
	Contacts         = "urn:ietf:params:jmap:contacts"
	Calendars        = "urn:ietf:params:jmap:calendars"
	WebSocket        = "urn:ietf:params:jmap:websocket"
)

// Capability describes one declared capability.
type Capability struct {
	URI           string   `json:"uri"`
	Name          string   `json:"name"`
	AccountScoped bool     `json:"accountScoped"`
	Methods       []string `json:"methods"`
}

// CoreLimits are the limits declared by the core capability object of a
// session document.
type CoreLimits struct {
	MaxSizeUpload         int64    `json:"maxSizeUpload"`
	MaxConcurrentUpload   int      `json:"maxConcurrentUpload"`
	MaxSizeRequest        int64    `json:"maxSizeRequest"`
	MaxConcurrentRequests int      `json:"maxConcurrentRequests"`
	MaxCallsInRequest     int      `json:"maxCallsInRequest"`
	MaxObjectsInGet       int      `json:"maxObjectsInGet"`
	MaxObjectsInSet       int      `json:"maxObjectsInSet"`
	CollationAlgorithms   []string `json:"collationAlgorithms"`
}

// WithDefaults returns l with every zero field taken from d.
func (l CoreLimits) WithDefaults(d CoreLimits) CoreLimits {
	if l.MaxSizeUpload == 0 {
		l.MaxSizeUpload = d.MaxSizeUpload
	}
	if l.MaxConcurrentUpload == 0 {
		l.MaxConcurrentUpload = d.MaxConcurrentUpload
	}
	if l.MaxSizeRequest == 0 {
		l.MaxSizeRequest = d.MaxSizeRequest
	}
	if l.MaxConcurrentRequests == 0 {
		l.MaxConcurrentRequests = d.MaxConcurrentRequests
	}
	if l.MaxCallsInRequest == 0 {
		l.MaxCallsInRequest = d.MaxCallsInRequest
	}
	if l.MaxObjectsInGet == 0 {
		l.MaxObjectsInGet = d.MaxObjectsInGet
	}
	if l.MaxObjectsInSet == 0 {
		l.MaxObjectsInSet = d.MaxObjectsInSet
	}
	if l.CollationAlgorithms == nil {
		l.CollationAlgorithms = slices.Clone(d.CollationAlgorithms)
	}
	return l
}

// Registry is the static method-name → capability mapping.
// A Registry is immutable after Load and safe for concurrent use.
type Registry struct {
	caps     []Capability // Declaration order
	byURI    map[string]int
	byMethod map[string]string
	defaults CoreLimits
}

// LoadError reports a registry declaration that failed to compile or
// validate.
type LoadError struct {
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capability registry: %s: %s", e.Message, errors.Details(e.Err, nil))
	}
	return "capability registry: " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load compiles a CUE registry declaration.
//
// The document must define `capabilities` (a list of #Capability) and
// `defaultLimits`. A method may belong to exactly one capability.
func Load(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename("registry.cue"))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Message: "compile", Err: err}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Message: "validate", Err: err}
	}

	var caps []Capability
	if err := v.LookupPath(cue.ParsePath("capabilities")).Decode(&caps); err != nil {
		return nil, &LoadError{Message: "decode capabilities", Err: err}
	}

	var defaults CoreLimits
	if err := v.LookupPath(cue.ParsePath("defaultLimits")).Decode(&defaults); err != nil {
		return nil, &LoadError{Message: "decode defaultLimits", Err: err}
	}

	r := &Registry{
		caps:     caps,
		byURI:    make(map[string]int, len(caps)),
		byMethod: make(map[string]string),
		defaults: defaults,
	}

	for i, c := range caps {
		if _, dup := r.byURI[c.URI]; dup {
			return nil, &LoadError{Message: fmt.Sprintf("duplicate capability %q", c.URI)}
		}
		r.byURI[c.URI] = i

		for _, m := range c.Methods {
			if owner, dup := r.byMethod[m]; dup {
				return nil, &LoadError{Message: fmt.Sprintf("method %q declared by both %q and %q", m, owner, c.URI)}
			}
			r.byMethod[m] = c.URI
		}
	}

	if _, ok := r.byURI[Core]; !ok {
		return nil, &LoadError{Message: "core capability must be declared"}
	}

	return r, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := Load(registryCUE)
	if err != nil {
		panic(err)
	}
	return r
})

// Default returns the registry compiled from the embedded declaration.
func Default() *Registry {
	return defaultRegistry()
}

// CapabilityFor returns the URI of the capability that owns method.
func (r *Registry) CapabilityFor(method string) (string, bool) {
	uri, ok := r.byMethod[method]
	return uri, ok
}

// Lookup returns the declared capability for uri.
func (r *Registry) Lookup(uri string) (Capability, bool) {
	i, ok := r.byURI[uri]
	if !ok {
		return Capability{}, false
	}
	c := r.caps[i]
	c.Methods = slices.Clone(c.Methods)
	return c, true
}

// Capabilities returns all declared capabilities in declaration order.
func (r *Registry) Capabilities() []Capability {
	out := make([]Capability, len(r.caps))
	for i, c := range r.caps {
		c.Methods = slices.Clone(c.Methods)
		out[i] = c
	}
	return out
}

// Methods returns every declared method name, sorted.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.byMethod))
	for m := range r.byMethod {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// DefaultLimits returns the fallback core limits.
func (r *Registry) DefaultLimits() CoreLimits {
	d := r.defaults
	d.CollationAlgorithms = slices.Clone(d.CollationAlgorithms)
	return d
}
