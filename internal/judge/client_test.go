package judge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dailyjudge/apiserver/config"
	"github.com/dailyjudge/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.JudgeConfig{URL: srv.URL, APIKey: "key", Host: "judge.example"})
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return client
}

func TestSubmitSendsContract(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("base64_encoded"))
		assert.Equal(t, "false", r.URL.Query().Get("wait"))
		assert.Equal(t, "key", r.Header.Get("X-RapidAPI-Key"))
		assert.Equal(t, "judge.example", r.Header.Get("X-RapidAPI-Host"))

		var body submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 71, body.LanguageID)
		assert.Equal(t, "print(input())", body.SourceCode)
		assert.Equal(t, "1", body.Stdin)
		assert.Equal(t, "1", body.ExpectedOutput)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))

	token, err := client.Submit(context.Background(), Submission{
		Language:       types.LanguagePython,
		SourceCode:     "print(input())",
		Stdin:          "1",
		ExpectedOutput: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}

func TestSubmitRejectsUnsupportedLanguageWithoutNetwork(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := client.Submit(context.Background(), Submission{Language: "cobol"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSubmitWithoutCredentials(t *testing.T) {
	client := NewClient(config.JudgeConfig{URL: "http://judge.invalid"})

	_, err := client.Submit(context.Background(), Submission{Language: types.LanguageGo})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestSubmitWrapsNon2xx(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))

	_, err := client.Submit(context.Background(), Submission{Language: types.LanguageGo})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Contains(t, upstream.Error(), "quota exceeded")
}

func pollHandler(t *testing.T, statuses []int, stdout string) (http.Handler, *int32) {
	t.Helper()
	var calls int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/submissions/tok-1", r.URL.Path)
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          map[string]any{"id": statuses[n], "description": Describe(statuses[n])},
			"stdout":          stdout,
			"stderr":          nil,
			"compile_output":  nil,
			"time":            "0.012",
			"memory":          3120,
			"expected_output": "3\n",
		})
	}), &calls
}

func TestAwaitResultPollsUntilTerminal(t *testing.T) {
	handler, calls := pollHandler(t, []int{StatusInQueue, StatusProcessing, StatusAccepted}, "3\n")
	client := newTestClient(t, handler)

	result, err := client.AwaitResult(context.Background(), "tok-1", 20, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, StatusAccepted, result.Status.ID)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(12), result.TimeMs)
	assert.Equal(t, int64(3120), result.MemoryKb)
}

func TestAwaitResultFlagsMismatchedOutput(t *testing.T) {
	handler, _ := pollHandler(t, []int{StatusAccepted}, "4\n")
	client := newTestClient(t, handler)

	result, err := client.AwaitResult(context.Background(), "tok-1", 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status.ID)
	assert.False(t, result.Accepted)
}

func TestAwaitResultTimesOut(t *testing.T) {
	handler, calls := pollHandler(t, []int{StatusProcessing}, "")
	client := newTestClient(t, handler)

	_, err := client.AwaitResult(context.Background(), "tok-1", 4, time.Millisecond)
	require.ErrorIs(t, err, ErrExecutionTimeout)
	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
}

func TestAwaitResultSurfacesUnknownStatus(t *testing.T) {
	handler, _ := pollHandler(t, []int{99}, "")
	client := newTestClient(t, handler)

	_, err := client.AwaitResult(context.Background(), "tok-1", 3, time.Millisecond)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestVerdictFor(t *testing.T) {
	v, ok := VerdictFor(StatusRuntimeNZEC)
	require.True(t, ok)
	assert.Equal(t, types.VerdictRuntimeError, v)

	_, ok = VerdictFor(StatusProcessing)
	assert.False(t, ok)

	_, ok = VerdictFor(1234)
	assert.False(t, ok)
	assert.Equal(t, "Unknown", Describe(1234))
}

func TestExecuteReturnsTokenWithResult(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-9"})
			return
		}
		assert.Equal(t, "/submissions/tok-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          map[string]any{"id": StatusAccepted, "description": "Accepted"},
			"stdout":          "3\n",
			"expected_output": "3",
			"time":            "0.005",
			"memory":          1024,
		})
	}))

	token, result, err := client.Execute(context.Background(), Submission{Language: types.LanguageGo, SourceCode: "package main"})
	require.NoError(t, err)
	assert.Equal(t, "tok-9", token)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(5), result.TimeMs)
}
