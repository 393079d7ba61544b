package transcribe_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njchilds90/derivtutor/transcribe"
)

const pngURL = "data:image/png;base64,iVBORw0KGgo="

func TestParseDataURL_Base64(t *testing.T) {
	d, err := transcribe.ParseDataURL(pngURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIME)
	assert.True(t, d.Base64)
	assert.Equal(t, 8, d.Len())
	assert.True(t, d.IsImage())
}

func TestParseDataURL_Plain(t *testing.T) {
	d, err := transcribe.ParseDataURL("data:,hello")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", d.MIME)
	assert.False(t, d.Base64)
	assert.Equal(t, 5, d.Len())
	assert.False(t, d.IsImage())
}

func TestParseDataURL_BadBase64IsEmpty(t *testing.T) {
	d, err := transcribe.ParseDataURL("data:image/jpeg;base64,@@@")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", d.MIME)
	assert.Equal(t, 0, d.Len())
}

func TestParseDataURL_Rejects(t *testing.T) {
	for _, s := range []string{"", "http://example.com/a.png", "data:image/png;base64"} {
		_, err := transcribe.ParseDataURL(s)
		assert.ErrorIs(t, err, transcribe.ErrInvalidDataURL, s)
	}
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls []string
	out   map[string]string
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, imageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, imageURL)
	if f.err != nil {
		return "", f.err
	}
	return f.out[imageURL], nil
}

func TestTranscribePair(t *testing.T) {
	fURL, gURL := "data:image/png;base64,AAAA", "data:image/png;base64,BBBB"
	fake := &fakeTranscriber{out: map[string]string{
		fURL: "SYMPY: x**2",
		gURL: "SYMPY: 2*x",
	}}
	p, err := transcribe.TranscribePair(context.Background(), fake, fURL, gURL)
	require.NoError(t, err)
	assert.Equal(t, transcribe.Pair{F: "SYMPY: x**2", G: "SYMPY: 2*x"}, p)
	assert.Len(t, fake.calls, 2)
}

func TestTranscribePair_NoTranscriber(t *testing.T) {
	_, err := transcribe.TranscribePair(context.Background(), nil, pngURL, pngURL)
	assert.ErrorIs(t, err, transcribe.ErrNoTranscriber)
}

func TestTranscribePair_InvalidImage(t *testing.T) {
	fake := &fakeTranscriber{}
	_, err := transcribe.TranscribePair(context.Background(), fake, pngURL, "not-a-url")
	assert.ErrorIs(t, err, transcribe.ErrInvalidDataURL)
	assert.Contains(t, err.Error(), "g image")
	assert.Empty(t, fake.calls)
}

func TestTranscribePair_NotAnImage(t *testing.T) {
	fake := &fakeTranscriber{}
	_, err := transcribe.TranscribePair(context.Background(), fake, "data:,hello", pngURL)
	assert.ErrorIs(t, err, transcribe.ErrInvalidDataURL)
	assert.Contains(t, err.Error(), "f image")
	assert.Contains(t, err.Error(), "text/plain")
	assert.Empty(t, fake.calls)
}

func TestTranscribePair_Failure(t *testing.T) {
	boom := errors.New("boom")
	_, err := transcribe.TranscribePair(context.Background(), &fakeTranscriber{err: boom}, pngURL, pngURL)
	assert.ErrorIs(t, err, boom)
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := transcribe.NewOpenAI(transcribe.OpenAIConfig{})
	assert.Error(t, err)
}

func TestOpenAI_Transcribe(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "  SYMPY: sin(x)\nLATEX: \\sin x\nVAR: x  "},
				"finish_reason": "stop"
			}]
		}`)
	}))
	defer srv.Close()

	o, err := transcribe.NewOpenAI(transcribe.OpenAIConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: srv.URL + "/v1",
	})
	require.NoError(t, err)

	text, err := o.Transcribe(context.Background(), pngURL)
	require.NoError(t, err)
	assert.Equal(t, "SYMPY: sin(x)\nLATEX: \\sin x\nVAR: x", text)

	require.NotNil(t, got)
	assert.Equal(t, "test-model", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Contains(t, mustJSON(t, msgs[0]), pngURL)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "choices": []}`)
	}))
	defer srv.Close()

	o, err := transcribe.NewOpenAI(transcribe.OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = o.Transcribe(context.Background(), pngURL)
	assert.Error(t, err)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
