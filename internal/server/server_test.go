package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velora-app/velora/internal/app"
	"github.com/velora-app/velora/internal/cache"
	"github.com/velora-app/velora/internal/config"
	"github.com/velora-app/velora/internal/db"
	"github.com/velora-app/velora/internal/hub"
	"github.com/velora-app/velora/internal/server"
)

func setupServer(t *testing.T) *gin.Engine {
	t.Helper()
	return setupServerWith(t, nil)
}

// setupServerWith applies a config tweak before the server is constructed.
func setupServerWith(t *testing.T, tweak func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.JWT.Secret = "test-secret"
	if tweak != nil {
		tweak(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(dbase, cache.NewRedisCache(cfg), logger, hub.New())
	return server.New(appCtx, cfg).Engine()
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// registerAndLogin creates an account via the API and returns its token.
func registerAndLogin(t *testing.T, engine *gin.Engine, username string) string {
	t.Helper()

	rec := doJSON(t, engine, http.MethodPost, "/api/auth/register", "", gin.H{
		"username":   username,
		"email":      username + "@test.com",
		"password":   "supersecret",
		"first_name": username,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": username,
		"password": "supersecret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["token"].(string)
}

// completeProfile fills every completeness requirement through the API.
func completeProfile(t *testing.T, engine *gin.Engine, token, gender string) uint64 {
	t.Helper()

	rec := doJSON(t, engine, http.MethodPut, "/api/profiles/me", token, gin.H{
		"gender":            gender,
		"sexual_preference": "heterosexual",
		"biography":         "hello there",
		"latitude":          41.0082,
		"longitude":         28.9784,
		"birth_date":        "1995-06-15",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPut, "/api/profiles/me/tags", token, gin.H{
		"tags": []string{"music"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/api/profiles/me/pictures", token, gin.H{
		"file_path": "/uploads/me.jpg",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/profiles/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.True(t, body["is_complete"].(bool), "profile must be complete after all steps")
	return uint64(body["id"].(float64))
}

func TestAuthMiddlewareRejectsAnonymous(t *testing.T) {
	engine := setupServer(t)

	rec := doJSON(t, engine, http.MethodGet, "/api/profiles/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/profiles/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfileLifecycleOverHTTP(t *testing.T) {
	engine := setupServer(t)

	token := registerAndLogin(t, engine, "alice")

	// fresh profile is incomplete
	rec := doJSON(t, engine, http.MethodGet, "/api/profiles/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody(t, rec)["is_complete"].(bool))

	completeProfile(t, engine, token, "female")
}

func TestSuggestionsRequireCompleteProfileOverHTTP(t *testing.T) {
	engine := setupServer(t)

	token := registerAndLogin(t, engine, "alice")

	rec := doJSON(t, engine, http.MethodGet, "/api/profiles/suggested", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "complete your profile")
}

func TestLikeMatchMessageFlow(t *testing.T) {
	engine := setupServer(t)

	aliceToken := registerAndLogin(t, engine, "alice")
	bobToken := registerAndLogin(t, engine, "bob")

	aliceProfile := completeProfile(t, engine, aliceToken, "female")
	bobProfile := completeProfile(t, engine, bobToken, "male")

	// bob shows up in alice's suggestions
	rec := doJSON(t, engine, http.MethodGet, "/api/profiles/suggested", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	suggestions := decodeBody(t, rec)["suggestions"].([]any)
	require.Len(t, suggestions, 1)

	// alice likes bob: no match yet
	rec = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", bobProfile), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody(t, rec)["is_match"].(bool))

	// bob likes back: match
	rec = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", aliceProfile), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody(t, rec)["is_match"].(bool))

	// both see the match
	rec = doJSON(t, engine, http.MethodGet, "/api/interactions/matches", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["matches"].([]any), 1)

	// matched users can message
	rec = doJSON(t, engine, http.MethodPost, "/api/realtime/messages/2", aliceToken, gin.H{
		"content": "hi bob!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodGet, "/api/realtime/messages/1", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decodeBody(t, rec)["messages"].([]any)
	require.Len(t, messages, 1)

	// bob's notification feed has like + match + message
	rec = doJSON(t, engine, http.MethodGet, "/api/realtime/notifications", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notifs := decodeBody(t, rec)["notifications"].([]any)
	assert.Len(t, notifs, 3)

	// the dedicated count endpoint agrees
	rec = doJSON(t, engine, http.MethodGet, "/api/realtime/notifications/count", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["unread_count"].(float64))
}

func TestMessagingRequiresMatchOverHTTP(t *testing.T) {
	engine := setupServer(t)

	aliceToken := registerAndLogin(t, engine, "alice")
	registerAndLogin(t, engine, "bob")

	rec := doJSON(t, engine, http.MethodPost, "/api/realtime/messages/2", aliceToken, gin.H{
		"content": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLikesReceivedFeedOverHTTP(t *testing.T) {
	engine := setupServer(t)

	aliceToken := registerAndLogin(t, engine, "alice")
	bobToken := registerAndLogin(t, engine, "bob")

	aliceProfile := completeProfile(t, engine, aliceToken, "female")
	completeProfile(t, engine, bobToken, "male")

	rec := doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", aliceProfile), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/api/interactions/likes/received", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	likes := decodeBody(t, rec)["likes"].([]any)
	require.Len(t, likes, 1)
}

func TestBlockedProfileCannotLikeOverHTTP(t *testing.T) {
	engine := setupServer(t)

	aliceToken := registerAndLogin(t, engine, "alice")
	bobToken := registerAndLogin(t, engine, "bob")

	aliceProfile := completeProfile(t, engine, aliceToken, "female")
	bobProfile := completeProfile(t, engine, bobToken, "male")

	rec := doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/block/%d", bobProfile), aliceToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", aliceProfile), bobToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// and bob vanishes from alice's suggestions
	rec = doJSON(t, engine, http.MethodGet, "/api/profiles/suggested", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody(t, rec)["suggestions"].([]any))
}

// dialWS opens a websocket against a live test server.
func dialWS(t *testing.T, srv *httptest.Server, token string, header http.Header) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWebsocketMessageAndHeartbeat(t *testing.T) {
	engine := setupServer(t)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	aliceToken := registerAndLogin(t, engine, "alice")
	bobToken := registerAndLogin(t, engine, "bob")

	aliceProfile := completeProfile(t, engine, aliceToken, "female")
	bobProfile := completeProfile(t, engine, bobToken, "male")

	rec := doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", bobProfile), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, engine, http.MethodPost,
		fmt.Sprintf("/api/interactions/like/%d", aliceProfile), bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	aliceWS := dialWS(t, srv, aliceToken, nil)
	bobWS := dialWS(t, srv, bobToken, nil)

	// ping/pong proves both read pumps are live before alice sends
	require.NoError(t, aliceWS.WriteJSON(gin.H{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, aliceWS)["type"])
	require.NoError(t, bobWS.WriteJSON(gin.H{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, bobWS)["type"])

	// a message frame from alice reaches bob as message + notification
	require.NoError(t, aliceWS.WriteJSON(gin.H{
		"type": "message",
		"data": gin.H{"recipient_id": 2, "content": "hi bob!"},
	}))

	frame := readFrame(t, bobWS)
	require.Equal(t, "message", frame["type"], "got %v", frame)
	data := frame["data"].(map[string]any)
	assert.Equal(t, "hi bob!", data["content"])
	assert.Equal(t, float64(1), data["sender_id"])

	frame = readFrame(t, bobWS)
	assert.Equal(t, "notification", frame["type"])

	// and the row is durable
	rec = doJSON(t, engine, http.MethodGet, "/api/realtime/messages/1", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody(t, rec)["messages"].([]any), 1)

	// presence is visible while the socket is open
	rec = doJSON(t, engine, http.MethodGet, "/api/realtime/conversations", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	convos := decodeBody(t, rec)["conversations"].([]any)
	require.Len(t, convos, 1)
	peer := convos[0].(map[string]any)["peer"].(map[string]any)
	assert.True(t, peer["is_online"].(bool))
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	engine := setupServerWith(t, func(cfg *config.Config) {
		cfg.WS.AllowedOrigins = []string{"https://app.velora.test"}
	})
	srv := httptest.NewServer(engine)
	defer srv.Close()

	token := registerAndLogin(t, engine, "alice")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime/ws?token=" + token

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.velora.test")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	conn.Close()
}
