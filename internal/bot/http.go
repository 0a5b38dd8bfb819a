package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"uctrader/internal/models"
)

const initDataMaxAge = 24 * time.Hour

// TraderLister lists trader records
type TraderLister interface {
	List() []models.TraderRecord
}

// LogQuerier reads a principal's operation log
type LogQuerier interface {
	Query(ctx context.Context, principal int64, q models.LogQuery) (models.LogPage, error)
}

// HTTPServer serves the owner's admin API
type HTTPServer struct {
	token   string
	ownerID int64
	traders TraderLister
	logs    LogQuerier
	logger  *zap.Logger
	now     func() time.Time
}

// NewHTTPServer creates the admin API. token is the bot token that signs
// Telegram Mini App initData.
func NewHTTPServer(token string, ownerID int64, traders TraderLister, logs LogQuerier, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{
		token:   token,
		ownerID: ownerID,
		traders: traders,
		logs:    logs,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes registers admin API routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/traders", hs.authMiddleware(hs.handleTraders))
	mux.HandleFunc("/api/logs", hs.authMiddleware(hs.handleLogs))
}

// validateTelegramInitData validates the Telegram Mini App initData and
// returns the user id it was issued to
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, fmt.Errorf("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, fmt.Errorf("missing hash in initData")
	}
	values.Del("hash")

	expected := signInitData(hs.token, dataCheckString(values))
	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return 0, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("missing or invalid auth_date")
	}
	if hs.now().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, fmt.Errorf("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, fmt.Errorf("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}

	if userData.ID != hs.ownerID {
		return 0, fmt.Errorf("user not allowed")
	}

	return userData.ID, nil
}

// dataCheckString joins the sorted key=value pairs with newlines
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}
	return b.String()
}

func signInitData(token, data string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(token))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// authMiddleware validates Telegram Mini App authentication in every mode
func (hs *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "tma ") {
			hs.logger.Warn("Missing or invalid authorization header")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
		if err != nil {
			hs.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		hs.logger.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", r.URL.Path),
		)

		next(w, r)
	}
}

// handleTraders returns every trader record
func (hs *HTTPServer) handleTraders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, hs.traders.List())
}

// handleLogs returns one page of a principal's operation log.
// Query: user_id (required), type, page, page_size.
func (hs *HTTPServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	params := r.URL.Query()
	userID, err := strconv.ParseInt(params.Get("user_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}

	q := models.LogQuery{Type: models.LogType(params.Get("type"))}
	if q.Type != "" && !q.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid type")
		return
	}
	q.Page, _ = strconv.Atoi(params.Get("page"))
	q.PageSize, _ = strconv.Atoi(params.Get("page_size"))

	page, err := hs.logs.Query(r.Context(), userID, q)
	if err != nil {
		hs.logger.Error("Failed to query logs", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
