package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "load", errors.New("nope")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: load: nope", wrapped.Error())
}

func TestOutputFormatterError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Error("E_X", "broken", map[string]int{"n": 1}))
	assert.JSONEq(t, `{"status":"error","error":{"code":"E_X","message":"broken","details":{"n":1}}}`, buf.String())

	buf.Reset()
	f = &OutputFormatter{Format: "text", Writer: &buf, Verbose: true}
	require.NoError(t, f.Error("E_X", "broken", "why"))
	assert.Equal(t, "Error [E_X]: broken\nDetails: why\n", buf.String())
}

func TestOutputFormatterTextAndVerbose(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.Textf("hidden in json mode")
	f.VerboseLog("to %s", "stderr")
	assert.Empty(t, out.String())
	assert.Equal(t, "to stderr\n", errOut.String())
}
