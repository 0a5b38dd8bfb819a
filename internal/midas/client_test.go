package midas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "secret", 2*time.Second, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestLookupPlayer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getPlayer", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		// player ids travel as JSON numbers
		assert.Equal(t, "512345678", string(body["player_id"]))

		writeJSON(w, http.StatusOK, `{"success":true,"data":{"status":"success","player_id":512345678,"player_name":"Sniper"}}`)
	})

	player, err := client.LookupPlayer(context.Background(), "512345678")
	require.NoError(t, err)
	assert.Equal(t, Player{ID: "512345678", Name: "Sniper"}, player)
}

func TestLookupPlayer_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":false,"message":"player not found"}`)
	})

	_, err := client.LookupPlayer(context.Background(), "1")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestLookupPlayer_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusBadGateway, `bad gateway`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"status":"success","player_id":"77","player_name":"Ghost"}}`)
	})

	player, err := client.LookupPlayer(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, "Ghost", player.Name)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupPlayer_Unavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, `down`)
	})
	client.retries = 1

	_, err := client.LookupPlayer(context.Background(), "77")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrPlayerNotFound)
}

func TestLookupPlayer_ClientErrorIsUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"success":false,"message":"invalid api key"}`)
	})

	_, err := client.LookupPlayer(context.Background(), "512345678")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrPlayerNotFound)
	assert.Contains(t, err.Error(), "http 401")
	assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
}

func TestLookupPlayer_LeadingZeros(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "123", string(body["player_id"]))

		writeJSON(w, http.StatusOK, `{"success":true,"data":{"status":"success","player_id":123,"player_name":"Zero"}}`)
	})

	player, err := client.LookupPlayer(context.Background(), "0123")
	require.NoError(t, err)
	assert.Equal(t, Player{ID: "123", Name: "Zero"}, player)

	_, err = client.LookupPlayer(context.Background(), "99999999999999999999999")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestLookupPlayer_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", 100*time.Millisecond, zap.NewNop())

	_, err := client.LookupPlayer(context.Background(), "77")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCheckCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/checkCode", r.URL.Path)

		var body struct {
			Code     string `json:"uc_code"`
			ShowTime bool   `json:"show_time"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "UC-ABCDE", body.Code)
		assert.True(t, body.ShowTime)

		writeJSON(w, http.StatusOK, `{"success":true,"data":{"status":"USED","uc_code":"UC-ABCDE","amount":60,"activated_to":5123,"activated_at":1700000000}}`)
	})

	status, err := client.CheckCode(context.Background(), "UC-ABCDE")
	require.NoError(t, err)
	assert.Equal(t, "USED", status.RawStatus)
	assert.Equal(t, "60", status.Amount)
	assert.Equal(t, "5123", status.ActivatedTo)
	assert.Equal(t, int64(1700000000), status.ActivatedAt)
}

func TestCheckCode_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":false,"message":"bad code"}`)
	})

	_, err := client.CheckCode(context.Background(), "X")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestActivateSingle_NeverRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadGateway, `bad gateway`)
	})

	_, err := client.ActivateSingle(context.Background(), "77", "UC-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestActivateSingle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activate", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":false,"message":"code already redeemed"}`)
	})

	result, err := client.ActivateSingle(context.Background(), "77", "UC-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", result.RawStatus)
	assert.Equal(t, "code already redeemed", result.Message)
}

func TestActivateSingle_BadRequestIsUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"success":false,"message":"bad request"}`)
	})

	result, err := client.ActivateSingle(context.Background(), "77", "UC-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, result.RawStatus)
}

func TestActivateBatch_PositionalResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activateBatch", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"results":[
			{"status":"success"},
			{"status":"failed","message":"already redeemed"}
		]}}`)
	})

	results, err := client.ActivateBatch(context.Background(), "77", []string{"A1", "B2", "C3"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, ActivationResult{Code: "A1", RawStatus: "success"}, results[0])
	assert.Equal(t, "already redeemed", results[1].Message)
	assert.Equal(t, "C3", results[2].Code)
	assert.Equal(t, "failed", results[2].RawStatus)
}

func TestActivateBatch_ReordersEchoedCodes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":[
			{"uc_code":"B2","status":"failed","message":"region mismatch"},
			{"uc_code":"A1","status":"success"}
		]}`)
	})

	results, err := client.ActivateBatch(context.Background(), "77", []string{"A1", "B2"})
	require.NoError(t, err)
	assert.Equal(t, "success", results[0].RawStatus)
	assert.Equal(t, "region mismatch", results[1].Message)
}

func TestActivateBatch_Rejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":false,"message":"player banned"}`)
	})

	_, err := client.ActivateBatch(context.Background(), "77", []string{"A1", "B2"})
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "player banned", batchErr.Message)
}
