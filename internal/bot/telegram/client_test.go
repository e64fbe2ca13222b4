package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trivigil/pkg/domainerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New("123:abc", server.URL, 5*time.Second)
	require.NoError(t, err)
	return client
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New("", "", time.Second)
	assert.Error(t, err)
}

func TestSend(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	})

	err := client.Send(context.Background(), 42, "✅ Verified!")
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, int64(42), gotBody.ChatID)
	assert.Equal(t, "✅ Verified!", gotBody.Text)
}

func TestSendAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Forbidden: bot was blocked by the user"})
	})

	err := client.Send(context.Background(), 42, "hi")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "blocked by the user")
}

func TestGetUpdates(t *testing.T) {
	var gotBody getUpdatesRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 100,
					"message": map[string]any{
						"message_id": 1,
						"from":       map[string]any{"id": 7},
						"chat":       map[string]any{"id": 7, "type": "private"},
						"text":       "/verify NAT-AAAAAAAA",
					},
				},
			},
		})
	})

	updates, err := client.GetUpdates(context.Background(), 100, 30*time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(100), gotBody.Offset)
	assert.Equal(t, 30, gotBody.Timeout)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(100), updates[0].UpdateID)
	assert.Equal(t, int64(7), updates[0].SenderID())
	assert.Equal(t, "/verify NAT-AAAAAAAA", updates[0].Message.Text)
}

func TestGetUpdatesEmptyPoll(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": []any{}})
	})

	updates, err := client.GetUpdates(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestSenderIDWithoutMessage(t *testing.T) {
	assert.Zero(t, Update{}.SenderID())
	assert.Zero(t, Update{Message: &Message{}}.SenderID())
}
