package notification

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationsNoopWithoutWebhook(t *testing.T) {
	t.Setenv("DISCORD_ERROR_NOTIFICATION_URL", "")
	t.Setenv("DISCORD_SUCCESS_NOTIFICATION_URL", "")

	assert.NoError(t, SendDiscordErrorNotification("boom"))
	assert.NoError(t, SendDiscordSuccessNotification("done"))
}

func TestSendDiscordErrorNotification(t *testing.T) {
	var received DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	t.Setenv("DISCORD_ERROR_NOTIFICATION_URL", server.URL)
	require.NoError(t, SendDiscordErrorNotification("something broke"))

	require.Len(t, received.Embeds, 1)
	assert.Contains(t, received.Embeds[0].Description, "something broke")
}

func TestSendDiscordNotificationBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	t.Setenv("DISCORD_SUCCESS_NOTIFICATION_URL", server.URL)
	assert.Error(t, SendDiscordSuccessNotification("done"))
}
