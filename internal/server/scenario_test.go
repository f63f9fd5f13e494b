package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/friendline/internal/config"
	"anoa.com/friendline/internal/entity"
	"anoa.com/friendline/internal/middleware"
	"anoa.com/friendline/internal/testutil"
	"anoa.com/friendline/pkg/changefeed"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const secret = "scenario-secret"

type client struct {
	t      *testing.T
	srv    *Server
	token  string
	userID string
}

func newClient(t *testing.T, srv *Server, p *entity.Profile) *client {
	t.Helper()
	token, err := middleware.IssueToken(secret, p.ID, time.Hour)
	require.NoError(t, err)
	return &client{t: t, srv: srv, token: token, userID: p.ID.String()}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c.srv.Handler().ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	srv := NewServer(Options{
		Config: &config.Config{
			JWTSecret:         secret,
			AllowedOrigins:    "http://localhost:3000",
			HeartbeatInterval: time.Minute,
			PresenceWindow:    90 * time.Second,
			FanoutWorkers:     2,
			FanoutQueue:       32,
		},
		DB:   db,
		Feed: changefeed.NewMemoryFeed(zap.NewNop()),
	})
	t.Cleanup(srv.Close)
	return srv, db
}

func hasNotification(t *testing.T, db *gorm.DB, recipient *entity.Profile, typ entity.NotificationType) func() bool {
	return func() bool {
		for _, n := range testutil.Notifications(t, db, recipient.ID) {
			if n.Type == typ {
				return true
			}
		}
		return false
	}
}

// Follow, accept, first message through a virtual conversation, then read.
func TestFriendshipToFirstMessageScenario(t *testing.T) {
	srv, db := newTestServer(t)
	alice := testutil.CreateProfile(t, db, "alice")
	bob := testutil.CreateProfile(t, db, "bob")
	a := newClient(t, srv, alice)
	b := newClient(t, srv, bob)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/follows/bob", nil, nil))
	require.Eventually(t, hasNotification(t, db, bob, entity.NotificationFollow), time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, b.do(http.MethodPost, "/api/follows/alice/accept", nil, nil))
	require.Eventually(t, hasNotification(t, db, alice, entity.NotificationAccept), time.Second, 10*time.Millisecond)

	var edges []entity.FollowEdge
	require.NoError(t, db.Where("status = ?", entity.FollowAccepted).Find(&edges).Error)
	assert.Len(t, edges, 2)

	var list struct {
		Data []struct {
			ID          string `json:"id"`
			UnreadCount int64  `json:"unread_count"`
		} `json:"data"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/conversations", nil, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "virtual-"+b.userID, list.Data[0].ID)

	var sent struct {
		Conversation string `json:"conversation_id"`
		Created      bool   `json:"conversation_created"`
		Message      struct {
			Body string `json:"body"`
		} `json:"message"`
	}
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/messages", map[string]any{
		"conversation_id": list.Data[0].ID,
		"body":            "hi",
	}, &sent))
	assert.True(t, sent.Created)
	assert.Equal(t, "hi", sent.Message.Body)
	convID := sent.Conversation

	var unread struct {
		Total          int64            `json:"total"`
		ByConversation map[string]int64 `json:"by_conversation"`
	}
	require.Eventually(t, func() bool {
		return b.do(http.MethodGet, "/api/notifications/message-unread", nil, &unread) == http.StatusOK &&
			unread.ByConversation[convID] == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/conversations", nil, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, convID, list.Data[0].ID)
	assert.Equal(t, int64(1), list.Data[0].UnreadCount)

	var summary struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.Equal(t, http.StatusOK, b.do(http.MethodPut, "/api/conversations/"+convID+"/read", nil, &summary))
	assert.Zero(t, summary.UnreadCount)
	require.Equal(t, http.StatusOK, b.do(http.MethodPut, "/api/conversations/"+convID+"/read", nil, &summary))
	assert.Zero(t, summary.UnreadCount)

	unread.ByConversation = nil
	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/notifications/message-unread", nil, &unread))
	assert.Zero(t, unread.Total)
	assert.Zero(t, unread.ByConversation[convID])

	var history struct {
		Messages []struct {
			Body string `json:"body"`
		} `json:"messages"`
	}
	require.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/conversations/"+convID+"/messages", nil, &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Body)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"disabled"`)
}
