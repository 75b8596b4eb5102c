package session

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// expandTemplate expands an endpoint template from the session document.
// Templates are only checked here, when an endpoint is first used, so a
// server with an odd push or blob endpoint can still run batches.
func expandTemplate(field, tmpl string, required []string, vars uritemplate.Values) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("session has no %s", field)
	}
	t, err := uritemplate.New(tmpl)
	if err != nil {
		return "", &DocumentError{Field: field, Message: "invalid template", Err: err}
	}
	names := t.Varnames()
	for _, name := range required {
		if !slices.Contains(names, name) {
			return "", &DocumentError{Field: field, Message: fmt.Sprintf("template %q lacks {%s}", tmpl, name)}
		}
	}
	out, err := t.Expand(vars)
	if err != nil {
		return "", &DocumentError{Field: field, Message: "invalid template", Err: err}
	}
	return out, nil
}

// DownloadURLFor expands the download template for one blob.
func (s *Snapshot) DownloadURLFor(accountID, blobID, name, contentType string) (string, error) {
	vars := uritemplate.Values{}
	vars.Set("accountId", uritemplate.String(accountID))
	vars.Set("blobId", uritemplate.String(blobID))
	vars.Set("name", uritemplate.String(name))
	vars.Set("type", uritemplate.String(contentType))
	return expandTemplate("downloadUrl", s.DownloadURL, []string{"accountId", "blobId"}, vars)
}

// UploadURLFor expands the upload template for an account.
func (s *Snapshot) UploadURLFor(accountID string) (string, error) {
	vars := uritemplate.Values{}
	vars.Set("accountId", uritemplate.String(accountID))
	return expandTemplate("uploadUrl", s.UploadURL, []string{"accountId"}, vars)
}

// EventSourceURLFor expands the event-source template.
// An empty types list subscribes to every type ("*"). Some servers publish
// the endpoint without variables; the parameters then go in the query.
func (s *Snapshot) EventSourceURLFor(types []string, closeAfter string, ping int) (string, error) {
	t := "*"
	if len(types) > 0 {
		t = strings.Join(types, ",")
	}
	if closeAfter == "" {
		closeAfter = "no"
	}
	p := strconv.Itoa(ping)

	vars := uritemplate.Values{}
	vars.Set("types", uritemplate.String(t))
	vars.Set("closeafter", uritemplate.String(closeAfter))
	vars.Set("ping", uritemplate.String(p))
	out, err := expandTemplate("eventSourceUrl", s.EventSourceURL, nil, vars)
	if err != nil {
		return "", err
	}
	if strings.Contains(s.EventSourceURL, "{") {
		return out, nil
	}

	u, err := url.Parse(out)
	if err != nil {
		return "", &DocumentError{Field: "eventSourceUrl", Message: "invalid url", Err: err}
	}
	q := u.Query()
	q.Set("types", t)
	q.Set("closeafter", closeAfter)
	q.Set("ping", p)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
