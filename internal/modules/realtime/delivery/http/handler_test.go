package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	convRepo "anoa.com/friendline/internal/modules/conversation/repository"
	conversation "anoa.com/friendline/internal/modules/conversation/service"
	followRepo "anoa.com/friendline/internal/modules/follow/repository"
	notifRepo "anoa.com/friendline/internal/modules/notification/repository"
	presence "anoa.com/friendline/internal/modules/presence/service"
	profileRepo "anoa.com/friendline/internal/modules/profile/repository"
	rtDto "anoa.com/friendline/internal/modules/realtime/dto"
	realtime "anoa.com/friendline/internal/modules/realtime/service"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	feed := changefeed.NewMemoryFeed(zap.NewNop())
	profiles := profileRepo.NewProfileRepository(db)
	notifs := notifRepo.NewNotificationRepository(db)
	presenceSvc := presence.NewPresenceService(profiles, time.Minute)
	alice := testutil.CreateProfile(t, db, "alice")

	h := NewRealtimeHandler(realtime.Deps{
		Conversations: conversation.NewConversationService(
			convRepo.NewConversationRepository(db), followRepo.NewFollowRepository(db), notifs, profiles, presenceSvc, feed, nil),
		Notifications: notifs,
		Feed:          feed,
	}, []string{"http://allowed.test"}, nil)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if uid := c.Query("as"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	}, h.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?as="+alice.ID.String(), http.Header{"Origin": {"http://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?as="+alice.ID.String(), http.Header{"Origin": {"http://allowed.test"}})
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	readType := func() string {
		var frame struct {
			Type string `json:"type"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		return frame.Type
	}
	assert.Equal(t, rtDto.FrameBadge, readType())
	assert.Equal(t, rtDto.FrameConversations, readType())

	require.NoError(t, conn.WriteJSON(rtDto.Action{Type: rtDto.ActionRefresh}))
	assert.Equal(t, rtDto.FrameBadge, readType())
	assert.Equal(t, rtDto.FrameConversations, readType())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, rtDto.FrameError, readType())
}
