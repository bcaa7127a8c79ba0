package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d60-Lab/sendables/config"
	"github.com/d60-Lab/sendables/internal/entities"
	"github.com/d60-Lab/sendables/internal/model"
	"github.com/d60-Lab/sendables/internal/registry"
	"github.com/d60-Lab/sendables/internal/service"
)

type testAPI struct {
	router *gin.Engine
	auth   *service.AuthService
	db     *gorm.DB
}

func setupAPI(t *testing.T) *testAPI {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.ReceivedSendable{},
		&model.RecipientSendableAssociation{},
		&model.Message{},
		&model.Notice{},
	))

	reg := registry.New(viper.New())
	require.NoError(t, entities.RegisterBuiltin(reg))

	unread := service.NewUnreadCache(nil, 0)
	svcs := Services{
		Auth:    service.NewAuthService(db, "test-secret", time.Hour),
		Send:    service.NewSendService(db, unread),
		Mark:    service.NewMarkService(db, unread),
		Retract: service.NewRetractService(db, unread),
		List:    service.NewListService(db, unread),
	}

	cfg := &config.Config{Server: config.ServerConfig{Mode: gin.TestMode}}
	return &testAPI{router: NewRouter(cfg, reg, svcs), auth: svcs.Auth, db: db}
}

func (a *testAPI) createUser(t *testing.T, username string, admin bool) *model.User {
	t.Helper()
	user, err := a.auth.CreateUser(context.Background(), username, username+"@example.com", "secret", admin)
	require.NoError(t, err)
	return user
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func (a *testAPI) login(t *testing.T, username string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": username,
		"password": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestHealthz(t *testing.T) {
	a := setupAPI(t)
	w := a.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	a := setupAPI(t)
	w := a.do(t, http.MethodGet, "/api/v1/messages", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "alice", false)
	w := a.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "wrong",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessageLifecycle(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "alice", false)
	bob := a.createUser(t, "bob", false)
	aliceToken := a.login(t, "alice")
	bobToken := a.login(t, "bob")

	// alice sends
	w := a.do(t, http.MethodPost, "/api/v1/messages/send", aliceToken, gin.H{
		"content":       "hello bob",
		"recipient_ids": []uint{bob.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	// bob has one unread message
	w = a.do(t, http.MethodGet, "/api/v1/messages/unread-count", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Unread int64 `json:"unread"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &count))
	require.Equal(t, int64(1), count.Unread)

	// bob lists and reads it
	w = a.do(t, http.MethodGet, "/api/v1/messages", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var inbox []struct {
		ID      uint   `json:"id"`
		Content string `json:"content"`
		IsRead  bool   `json:"is_read"`
		Sender  *struct {
			Username string `json:"username"`
		} `json:"sender"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &inbox))
	require.Len(t, inbox, 1)
	require.Equal(t, "hello bob", inbox[0].Content)
	require.False(t, inbox[0].IsRead)
	require.NotNil(t, inbox[0].Sender)
	require.Equal(t, "alice", inbox[0].Sender.Username)

	w = a.do(t, http.MethodPatch, "/api/v1/messages/mark-read", bobToken, gin.H{
		"message_ids": []uint{inbox[0].ID},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages/unread", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var unread []json.RawMessage
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &unread))
	require.Empty(t, unread)

	// alice sees it in her outbox
	w = a.do(t, http.MethodGet, "/api/v1/messages/sent", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sent []struct {
		Content    string `json:"content"`
		Recipients []struct {
			Username string `json:"username"`
		} `json:"recipients"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &sent))
	require.Len(t, sent, 1)
	require.Len(t, sent[0].Recipients, 1)
	require.Equal(t, "bob", sent[0].Recipients[0].Username)

	// bob deletes his copy
	w = a.do(t, http.MethodDelete, "/api/v1/messages/delete", bobToken, gin.H{
		"message_ids": []uint{inbox[0].ID},
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var after []json.RawMessage
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &after))
	require.Empty(t, after)
}

func TestSendValidatesRequestBody(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "alice", false)
	token := a.login(t, "alice")

	w := a.do(t, http.MethodPost, "/api/v1/messages/send", token, gin.H{"content": "hi"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, decode(t, w).Errors, "recipient_ids")

	w = a.do(t, http.MethodPost, "/api/v1/messages/send", token, gin.H{
		"content":       "hi",
		"recipient_ids": []uint{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoticeSendRequiresAdmin(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "alice", false)
	a.createUser(t, "root", true)
	alice := a.login(t, "alice")
	root := a.login(t, "root")
	target := a.createUser(t, "carol", false)

	w := a.do(t, http.MethodPost, "/api/v1/notices/send", alice, gin.H{
		"content":       "announcement",
		"recipient_ids": []uint{target.ID},
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/notices/send", root, gin.H{
		"content":       "announcement",
		"recipient_ids": []uint{target.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestNoticeHasNoSentRoutes(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "root", true)
	token := a.login(t, "root")

	w := a.do(t, http.MethodGet, "/api/v1/notices/sent", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodDelete, "/api/v1/notices/delete-sent", token, gin.H{
		"notice_ids": []uint{1},
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDetailRoutes(t *testing.T) {
	a := setupAPI(t)
	a.createUser(t, "alice", false)
	bob := a.createUser(t, "bob", false)
	aliceToken := a.login(t, "alice")
	bobToken := a.login(t, "bob")

	w := a.do(t, http.MethodPost, "/api/v1/messages/send", aliceToken, gin.H{
		"content":       "hi",
		"recipient_ids": []uint{bob.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var refs []model.ReceivedSendable
	require.NoError(t, a.db.Find(&refs).Error)
	require.Len(t, refs, 1)

	w = a.do(t, http.MethodGet, "/api/v1/messages/1", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages/1", aliceToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages/sent/1", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/messages/sent/1", bobToken, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
