// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
	"github.com/tsunamayo7/helix-ai-studio/internal/model"
	"github.com/tsunamayo7/helix-ai-studio/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

// testHome points the configuration directory at a temporary directory and
// clears the environment overrides.
func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HELIX_HOME", home)
	t.Setenv("NO_COLOR", "1")
	for _, env := range []string{"HELIX_URL", "HELIX_ENDPOINT", "HELIX_MODEL", "HELIX_LOCAL_MODEL",
		"HELIX_PROJECT_DIR", "HELIX_TOKEN_FILE", "HELIX_HISTORY_SOURCE", "HELIX_LOG_LEVEL", "HELIX_DEBUG"} {
		t.Setenv(env, "")
	}
	t.Setenv("HELIX_LOG_LEVEL", "error")
	t.Cleanup(config.ResetGlobalForTesting)
	return home
}

// run executes one command line and returns stdout, stderr and the error.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func decodeJSON(t *testing.T, out string) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func writeToken(t *testing.T, home, token string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(home, "token"), []byte(token+"\n"), 0600))
}

// =============================================================================
// VERSION AND CONFIG
// =============================================================================

func TestVersion_JSON(t *testing.T) {
	testHome(t)

	out, _, err := run(t, "", "version", "--json")
	require.NoError(t, err)

	resp := decodeJSON(t, out)
	assert.True(t, resp.Success)
	assert.Equal(t, "version", resp.Command)
	data := resp.Data.(map[string]any)
	assert.Equal(t, Version, data["version"])
}

func TestConfig_InitGetSet(t *testing.T) {
	home := testHome(t)

	out, _, err := run(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", out)

	_, _, err = run(t, "", "config", "init")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, "config.toml"))
	require.NoError(t, err)

	_, _, err = run(t, "", "config", "init")
	require.Error(t, err, "init must not overwrite without --force")
	_, _, err = run(t, "", "config", "init", "--force")
	require.NoError(t, err)

	_, _, err = run(t, "", "config", "set", "server.default_endpoint", "mix")
	require.NoError(t, err)
	_, _, err = run(t, "", "config", "set", "execute.model_assignments", "coding=qwen3, research=gemma3")
	require.NoError(t, err)

	out, _, err = run(t, "", "config", "get", "server.default_endpoint")
	require.NoError(t, err)
	assert.Equal(t, "mix\n", out)

	out, _, err = run(t, "", "config", "get", "execute.model_assignments")
	require.NoError(t, err)
	assert.Equal(t, "coding=qwen3,research=gemma3\n", out)
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	testHome(t)

	tests := []struct {
		name     string
		key      string
		value    string
		wantCode int
	}{
		{"unknown key", "server.nope", "x", ExitUsageError},
		{"bad integer", "connection.keepalive_secs", "soon", ExitUsageError},
		{"invalid endpoint", "server.default_endpoint", "chat", ExitConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", "config", "set", tt.key, tt.value)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err), err.Error())
		})
	}
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"interrupted", fmt.Errorf("wait: %w", context.Canceled), ExitInterrupted},
		{"timeout", NewCommandError("ask", "wait", context.DeadlineExceeded), ExitTimeoutError},
		{"validation", ErrMissingArgument("prompt", "helix ask PROMPT"), ExitUsageError},
		{"unknown endpoint", fmt.Errorf("x: %w", conn.ErrUnknownEndpoint), ExitUsageError},
		{"tty", &TTYRequiredError{Operation: "chat"}, ExitUsageError},
		{"empty pin", auth.ErrEmptyPIN, ExitUsageError},
		{"config", fmt.Errorf("config: %w", config.ValidateErrors{{Field: "a", Message: "b"}}), ExitConfigError},
		{"unauthorized", fmt.Errorf("list: %w", history.ErrUnauthorized), ExitAuthError},
		{"rejected socket", fmt.Errorf("connect: %w", conn.ErrAuthRejected), ExitAuthError},
		{"no credential", history.ErrNoCredential, ExitAuthError},
		{"not found", NewCommandError("chats", "show", history.ErrNotFound), ExitNotFoundError},
		{"not connected", conn.ErrNotConnected, ExitNetworkError},
		{"rate limited", history.ErrRateLimited, ExitNetworkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError_JSON(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, ErrInvalidValue("mode", "chat", "solo, mix or local"), true)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "validation_error", out["error_type"])
	assert.Equal(t, "mode", out["field"])
	assert.EqualValues(t, ExitUsageError, out["exit_code"])
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", WrapText("one two three", 8))
	assert.Equal(t, "short", WrapText("short", 80))
	assert.Equal(t, "a\n\nb", WrapText("a\n\nb", 80))
	// Wide characters take two columns each.
	assert.Equal(t, "日本語\n日本語", WrapText("日本語 日本語", 8))
}

// =============================================================================
// CHATS (LOCAL ARCHIVE)
// =============================================================================

func TestChats_LocalArchive(t *testing.T) {
	home := testHome(t)
	t.Setenv("HELIX_HISTORY_SOURCE", "local")

	archive, err := storage.Open(filepath.Join(home, "archive.db"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", model.NewUserMessage("hello")))
	require.NoError(t, archive.RecordMessage(ctx, "c1", "solo", model.NewMessage(model.RoleAssistant, "hi there")))
	require.NoError(t, archive.SetTitle(ctx, "c1", "Greeting"))
	require.NoError(t, archive.RecordMessage(ctx, "c2", "mix", model.NewUserMessage("compare")))
	require.NoError(t, archive.Close())

	out, _, err := run(t, "", "chats", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Greeting")
	assert.Contains(t, out, "c2")

	out, _, err = run(t, "", "--json", "chats", "list", "--mode", "solo")
	require.NoError(t, err)
	resp := decodeJSON(t, out)
	chats := resp.Data.([]any)
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].(map[string]any)["id"])

	out, _, err = run(t, "", "chats", "show", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "You: hello")
	assert.Contains(t, out, "hi there")

	outDir := filepath.Join(home, "exports")
	out, _, err = run(t, "", "--json", "chats", "export", "c1", "--format", "json", "-o", outDir)
	require.NoError(t, err)
	exported := decodeJSON(t, out).Data.(map[string]any)["path"].(string)
	assert.Equal(t, ".json", filepath.Ext(exported))
	assert.Equal(t, outDir, filepath.Dir(exported))
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hi there")

	_, _, err = run(t, "", "chats", "export", "c1", "--format", "pdf")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	_, _, err = run(t, "", "chats", "rename", "c1", "New", "title")
	require.NoError(t, err)
	out, _, err = run(t, "", "--json", "chats", "show", "c1")
	require.NoError(t, err)
	assert.Equal(t, "New title", decodeJSON(t, out).Data.(map[string]any)["title"])

	_, _, err = run(t, "", "chats", "rm", "c1")
	require.NoError(t, err)
	_, _, err = run(t, "", "chats", "show", "c1")
	require.Error(t, err)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))

	_, _, err = run(t, "", "chats", "list", "--mode", "chat")
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

// =============================================================================
// SERVER-BACKED COMMANDS
// =============================================================================

// fakeServer is a Helix AI Studio stand-in with the REST API and the solo
// socket.
type fakeServer struct {
	*httptest.Server
	frames chan map[string]any
	modes  chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{frames: make(chan map[string]any, 4), modes: make(chan string, 4)}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","service":"helix-ai-studio","version":"2.1.0"}`)
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["pin"] != "1234" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"invalid pin"}`)
			return
		}
		io.WriteString(w, `{"token":"jwt-from-login","expires_in_hours":24}`)
	})
	mux.HandleFunc("/api/auth/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"valid":true,"sub":"owner"}`)
	})
	mux.HandleFunc("PUT /api/chats/{id}/mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		fs.modes <- r.PathValue("id") + "=" + body["mode"]
		io.WriteString(w, `{"status":"ok","mode":"`+body["mode"]+`"}`)
	})
	mux.HandleFunc("/ws/solo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if json.Unmarshal(data, &frame) == nil {
			fs.frames <- frame
		}
		for _, f := range []string{
			`{"type":"status","status":"executing"}`,
			`{"type":"chat_created","chat_id":"c42"}`,
			`{"type":"streaming","chunk":"Hello","done":false}`,
			`{"type":"streaming","chunk":", world","done":false}`,
			`{"type":"chat_title_updated","chat_id":"c42","title":"Greeting"}`,
			`{"type":"streaming","chunk":"","done":true}`,
			`{"type":"status","status":"completed"}`,
		} {
			if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func TestAsk_EndToEnd(t *testing.T) {
	home := testHome(t)
	srv := newFakeServer(t)
	t.Setenv("HELIX_URL", srv.URL)
	writeToken(t, home, "tok")

	out, _, err := run(t, "", "--json", "ask", "--model", "gpt-test", "say", "hello")
	require.NoError(t, err)

	resp := decodeJSON(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "solo", data["endpoint"])
	assert.Equal(t, "c42", data["chat_id"])
	assert.Equal(t, "Greeting", data["title"])
	assert.Equal(t, "Hello, world", data["answer"])

	frame := <-srv.frames
	assert.Equal(t, "execute", frame["action"])
	assert.Equal(t, "say hello", frame["prompt"])
	assert.Equal(t, "gpt-test", frame["model_id"])
	assert.Nil(t, frame["chat_id"])
}

func TestAsk_Streams(t *testing.T) {
	home := testHome(t)
	srv := newFakeServer(t)
	t.Setenv("HELIX_URL", srv.URL)
	writeToken(t, home, "tok")

	out, _, err := run(t, "say hello\n", "ask", "-")
	require.NoError(t, err)
	assert.Equal(t, "Assistant:\nHello, world\n", out)
	assert.Equal(t, "say hello", (<-srv.frames)["prompt"])
}

func TestAsk_NotLoggedIn(t *testing.T) {
	testHome(t)

	_, _, err := run(t, "", "ask", "hello")
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestAsk_InvalidMode(t *testing.T) {
	home := testHome(t)
	writeToken(t, home, "tok")

	_, _, err := run(t, "", "ask", "--mode", "chat", "hello")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestChats_Mode(t *testing.T) {
	home := testHome(t)
	srv := newFakeServer(t)
	t.Setenv("HELIX_URL", srv.URL)
	writeToken(t, home, "tok")

	out, _, err := run(t, "", "--json", "chats", "mode", "c42", "Full")
	require.NoError(t, err)
	assert.Equal(t, "full", decodeJSON(t, out).Data.(map[string]any)["context_mode"])
	assert.Equal(t, "c42=full", <-srv.modes)

	_, _, err = run(t, "", "chats", "mode", "c42", "everything")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
	assert.Empty(t, srv.modes)
}

func TestLoginVerifyLogout(t *testing.T) {
	home := testHome(t)
	srv := newFakeServer(t)
	t.Setenv("HELIX_URL", srv.URL)

	_, _, err := run(t, "0000\n", "login")
	require.Error(t, err)
	assert.Equal(t, ExitAuthError, GetExitCode(err))

	_, _, err = run(t, "\n", "login")
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	out, _, err := run(t, "1234\n", "--json", "login")
	require.NoError(t, err)
	data := decodeJSON(t, out).Data.(map[string]any)
	assert.EqualValues(t, 24, data["expires_in_hours"])

	token, err := auth.ReadTokenFile(filepath.Join(home, "token"))
	require.NoError(t, err)
	assert.Equal(t, "jwt-from-login", token)

	// The fake server only accepts "tok".
	_, _, err = run(t, "", "verify")
	assert.Equal(t, ExitAuthError, GetExitCode(err))
	writeToken(t, home, "tok")
	out, _, err = run(t, "", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "owner")

	_, _, err = run(t, "", "logout")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, "token"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, _, err = run(t, "", "verify")
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestStatus_JSON(t *testing.T) {
	home := testHome(t)
	srv := newFakeServer(t)
	t.Setenv("HELIX_URL", srv.URL)
	writeToken(t, home, "tok")

	out, _, err := run(t, "", "--json", "status")
	require.NoError(t, err)

	data := decodeJSON(t, out).Data.(map[string]any)
	assert.Equal(t, true, data["reachable"])
	assert.Equal(t, "2.1.0", data["version"])
	assert.Equal(t, true, data["logged_in"])
	assert.Equal(t, true, data["token_valid"])
	assert.Equal(t, "remote", data["history_source"])
}

func TestChat_RequiresTerminal(t *testing.T) {
	testHome(t)

	_, _, err := run(t, "", "chat")
	var ttyErr *TTYRequiredError
	require.ErrorAs(t, err, &ttyErr)
}
