package intercom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, AccessToken: "tok"}, nil)
	require.NoError(t, err)
	return client, srv
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{AccessToken: "tok"}, nil); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewClient(Config{BaseURL: "https://api.intercom.io"}, nil); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestGetConversation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/conversations/conv-1", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(sampleConversationJSON))
	})

	conv, err := client.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Equal(t, "conv-1", conv.ID)
	require.Len(t, conv.Messages, 3)
}

func TestGetConversationServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})

	conv, err := client.GetConversation(context.Background(), "missing")
	require.Error(t, err)
	require.Nil(t, conv)
}

func TestReplySendsCommentPayload(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/conv-1/reply", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"conv-1"}`))
	})

	err := client.Reply(context.Background(), "conv-1", "You're welcome", "8393893")
	require.NoError(t, err)
	require.Equal(t, "comment", got["message_type"])
	require.Equal(t, "admin", got["type"])
	require.Equal(t, "8393893", got["admin_id"])
	require.Equal(t, "You're welcome", got["body"])
}

func TestNoteSendsNotePayload(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, client.Note(context.Background(), "conv-1", "assistant answer", "8393893"))
	require.Equal(t, "note", got["message_type"])
}

func TestReplyFailureIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	err := client.Reply(context.Background(), "conv-1", "hi", "1")
	require.Error(t, err)
}

func TestReplyValidation(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})

	require.Error(t, client.Reply(context.Background(), "", "body", "1"))
	require.Error(t, client.Reply(context.Background(), "conv-1", "", "1"))
}
