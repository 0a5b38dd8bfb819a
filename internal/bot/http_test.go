package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uctrader/internal/models"
)

const testToken = "123456:TEST-TOKEN"

type staticTraders []models.TraderRecord

func (s staticTraders) List() []models.TraderRecord { return s }

type stubLogs struct {
	got   models.LogQuery
	page  models.LogPage
	err   error
	calls int
}

func (s *stubLogs) Query(ctx context.Context, principal int64, q models.LogQuery) (models.LogPage, error) {
	s.calls++
	s.got = q
	return s.page, s.err
}

// signedInitData builds initData the way Telegram signs it
func signedInitData(userID int64, authDate time.Time) string {
	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	values.Set("query_id", "AAF")
	values.Set("user", `{"id":`+strconv.FormatInt(userID, 10)+`,"first_name":"Owner"}`)
	values.Set("hash", signInitData(testToken, dataCheckString(values)))
	return values.Encode()
}

func newTestServer(logs *stubLogs) (*HTTPServer, *http.ServeMux) {
	traders := staticTraders{{UserID: 100, Username: "trader", Active: true}}
	hs := NewHTTPServer(testToken, 1, traders, logs, zap.NewNop())
	mux := http.NewServeMux()
	hs.RegisterRoutes(mux)
	return hs, mux
}

// ownerRequest builds a request signed for the owner
func ownerRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "tma "+signedInitData(1, time.Now()))
	return req
}

func TestValidateTelegramInitData(t *testing.T) {
	hs, _ := newTestServer(&stubLogs{})
	now := time.Now()

	id, err := hs.validateTelegramInitData(signedInitData(1, now))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	_, err = hs.validateTelegramInitData(signedInitData(2, now))
	assert.EqualError(t, err, "user not allowed")

	_, err = hs.validateTelegramInitData(signedInitData(1, now.Add(-25*time.Hour)))
	assert.EqualError(t, err, "initData is too old")

	tampered, _ := url.ParseQuery(signedInitData(1, now))
	tampered.Set("user", `{"id":1,"first_name":"Mallory"}`)
	_, err = hs.validateTelegramInitData(tampered.Encode())
	assert.EqualError(t, err, "invalid hash")

	_, err = hs.validateTelegramInitData("")
	assert.Error(t, err)
}

func TestHTTPServer_TradersRequiresAuth(t *testing.T) {
	_, mux := newTestServer(&stubLogs{})

	req := httptest.NewRequest(http.MethodGet, "/api/traders", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/traders", nil)
	req.Header.Set("Authorization", "tma "+signedInitData(1, time.Now()))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var traders []models.TraderRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&traders))
	require.Len(t, traders, 1)
	assert.Equal(t, int64(100), traders[0].UserID)
}

func TestHTTPServer_AuthRequiredForEveryRoute(t *testing.T) {
	_, mux := newTestServer(&stubLogs{})

	for _, target := range []string{"/api/traders", "/api/logs?user_id=100"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, ownerRequest(http.MethodPost, "/api/traders"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPServer_Logs(t *testing.T) {
	logs := &stubLogs{page: models.LogPage{Total: 3, Page: 2, PageSize: 1}}
	_, mux := newTestServer(logs)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, ownerRequest(http.MethodGet, "/api/logs?user_id=100&type=activate&page=2&page_size=1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.LogQuery{Type: models.LogActivate, Page: 2, PageSize: 1}, logs.got)

	var page models.LogPage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 3, page.Total)
}

func TestHTTPServer_LogsBadRequests(t *testing.T) {
	logs := &stubLogs{}
	_, mux := newTestServer(logs)

	for _, target := range []string{"/api/logs", "/api/logs?user_id=abc", "/api/logs?user_id=1&type=refund"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, ownerRequest(http.MethodGet, target))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
	assert.Zero(t, logs.calls)

	logs.err = errors.New("clickhouse down")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, ownerRequest(http.MethodGet, "/api/logs?user_id=1"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhookHandler_RequiresSecret(t *testing.T) {
	engine := newRecordingEngine()
	b := NewBot(nil, engine, zap.NewNop())
	handler := b.WebhookHandler("s3cret")

	body := `{"update_id":1,"message":{"message_id":1,"from":{"id":1},"chat":{"id":1},"text":"/genkey 30"}}`
	post := func(secret string) int {
		req := httptest.NewRequest(http.MethodPost, "/telegram-webhook", strings.NewReader(body))
		if secret != "" {
			req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
		}
		rec := httptest.NewRecorder()
		handler(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("guess"))
	assert.Equal(t, http.StatusOK, post("s3cret"))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/telegram-webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	stop(t, b)
	assert.Equal(t, []string{"/genkey 30"}, engine.texts(1))
}
