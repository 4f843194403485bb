package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

func useConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := configDir
	configDir = func() string { return dir }
	t.Cleanup(func() { configDir = old })
	return dir
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"service=Mail", "notes=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"service": "Mail", "notes": "a=b", "empty": ""}, fields)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
}

func TestEntryTitle(t *testing.T) {
	assert.Equal(t, "Bank", entryTitle(map[string]any{"fields": map[string]any{"institution": "Bank"}}))
	assert.Equal(t, "Mail", entryTitle(map[string]any{"fields": map[string]any{"service": "Mail", "name": "x"}}))
	assert.Equal(t, "", entryTitle(map[string]any{}))
}

func TestClientSendsToken(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get(TokenHeader)
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ok": true}}) //nolint:errcheck
	}))
	defer srv.Close()

	cfg = CLIConfig{Address: srv.URL, Token: "tok"}
	result, err := newClient().get("/v1/records")
	require.NoError(t, err)
	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, map[string]any{"ok": true}, result["data"])
}

func TestClientErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"errors":["vault is locked"]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	cfg = CLIConfig{Address: srv.URL}
	_, err := newClient().get("/v1/records")
	require.Error(t, err)
	assert.Equal(t, "vault is locked", err.Error())

	_, err = newClient().getRaw("/v1/backup")
	require.Error(t, err)
	assert.Equal(t, "vault is locked", err.Error())

	err = newClient().delete("/v1/records/x")
	require.Error(t, err)
}

func TestStoreSessionSavesToken(t *testing.T) {
	dir := useConfigDir(t)
	out, _ := captureOutput(t)
	outputFormat = "table"
	cfg = CLIConfig{Address: "http://127.0.0.1:8300"}

	require.NoError(t, storeSession(map[string]any{"token": "abc", "expiresAt": "soon"}, "Vault unlocked"))
	assert.Contains(t, out.String(), "Vault unlocked")

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "token: abc")

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg = CLIConfig{}
	loadConfig()
	assert.Equal(t, "abc", cfg.Token)
}

func TestPrintRows(t *testing.T) {
	out, _ := captureOutput(t)
	outputFormat = "table"
	printRows([]any{
		map[string]any{"name": "Ann", "email": "ann@example.com"},
		map[string]any{"name": "Bob"},
	}, "name", "email")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "ann@example.com")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "-"))
}

func TestPromptPasswordFromPipe(t *testing.T) {
	_, _ = captureOutput(t)
	oldIn, oldTerm := stdin, isTerminal
	stdin = strings.NewReader("s3cret-pass\n")
	isTerminal = func() bool { return false }
	t.Cleanup(func() { stdin, isTerminal = oldIn, oldTerm })

	pw, err := promptPassword("Master password: ")
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", pw)
}

func TestPromptPasswordFromTerminal(t *testing.T) {
	_, _ = captureOutput(t)
	oldTerm, oldRead := isTerminal, readPassword
	isTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) { return []byte("typed"), nil }
	t.Cleanup(func() { isTerminal, readPassword = oldTerm, oldRead })

	pw, err := promptPassword("Master password: ")
	require.NoError(t, err)
	assert.Equal(t, "typed", pw)
}
