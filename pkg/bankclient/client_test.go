package bankclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRecipient_SendsBearerTokenAndCanonicalNumber(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("accountNumber")
		assert.Equal(t, "/api/account/verify-recipient", r.URL.Path)
		_, _ = w.Write([]byte("Jane Doe\n"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/", 0).WithToken("tok-123")
	name, err := client.VerifyRecipient(context.Background(), "1234567890")

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "1234567890", gotQuery)
}

func TestVerifyRecipient_SurfacesBackendTextVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "No such account", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).WithToken("tok").VerifyRecipient(context.Background(), "9999999999")

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Equal(t, "No such account", remote.Message)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestRemoteError_MatchesUnauthorizedFor401And403(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		err := error(&RemoteError{StatusCode: status, Message: "denied"})
		assert.True(t, errors.Is(err, ErrUnauthorized), "status %d", status)
	}
}

func TestTransfer_PostsJSONBody(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/account/42/transfer", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		_, _ = w.Write([]byte("Transfer successful"))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, 0).WithToken("tok").Transfer(context.Background(), 42, TransferRequest{
		RecipientAccountNumber: "1234567890",
		Amount:                 decimal.RequireFromString("100.50"),
		PIN:                    "1234",
	})

	require.NoError(t, err)
	assert.Equal(t, "1234567890", body["recipientAccountNumber"])
	assert.Equal(t, "1234", body["pin"])
	assert.Equal(t, "100.5", body["amount"])
	_, hasPassword := body["password"]
	assert.False(t, hasPassword)
}

func TestBalance_DecodesBareNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1520.75"))
	}))
	defer srv.Close()

	balance, err := NewClient(srv.URL, 0).WithToken("tok").Balance(context.Background(), 7)

	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1520.75")))
}

func TestAuthenticatedCallWithoutTokenFailsWithoutRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).WithToken("  ").Me(context.Background())

	assert.ErrorIs(t, err, ErrMissingToken)
	assert.False(t, called)
}

func TestNetworkFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, 0).WithToken("tok").Accounts(context.Background())

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestLogin_RequiresAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokenType":"Bearer"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Login(context.Background(), LoginRequest{Username: "jane", Password: "secret"})

	assert.Error(t, err)
}
