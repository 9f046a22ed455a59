package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/portal-service/internal/app"
)

type stubBank struct {
	mu        sync.Mutex
	transfers []map[string]interface{}
}

func (b *stubBank) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-cli" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"accessToken":"tok-cli","tokenType":"Bearer"}`)
	})
	mux.HandleFunc("/api/account/me", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"username":"sam","fullName":"Sam Lee"}`)
	}))
	mux.HandleFunc("/api/account/my-accounts", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":7,"accountNumber":"5555000011","balance":2500}]`)
	}))
	mux.HandleFunc("/api/account/7/balance", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `2500.00`)
	}))
	mux.HandleFunc("/api/account/7/transactions", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":3,"type":"DEPOSIT","amount":300,"timestamp":"2026-05-01T10:00:00","description":"Salary"},`+
			`{"id":4,"type":"PAYMENT","amount":-45.25,"timestamp":"2026-05-02T11:00:00","description":"Power bill"}]`)
	}))
	mux.HandleFunc("/api/account/verify-recipient", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("accountNumber") != "1234567890" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "No such account")
			return
		}
		io.WriteString(w, "Jane Doe")
	}))
	mux.HandleFunc("/api/account/7/transfer", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.transfers = append(b.transfers, body)
		b.mu.Unlock()
		io.WriteString(w, "Transfer successful!")
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (b *stubBank) transferCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.transfers)
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PORTAL_TOKEN", "")
	t.Setenv("BANK_API_BASE_URL", "")
	t.Setenv("API_BASE_URL", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginPrintsToken(t *testing.T) {
	srv := (&stubBank{}).server(t)

	out, err := runCLI(t, "", "login", "--api", srv.URL+"/api", "-u", "sam", "-p", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-cli\n", out)
}

func TestBalanceRequiresToken(t *testing.T) {
	srv := (&stubBank{}).server(t)

	_, err := runCLI(t, "", "balance", "--api", srv.URL+"/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORTAL_TOKEN")
}

func TestBalanceShowsFormattedAmount(t *testing.T) {
	srv := (&stubBank{}).server(t)

	out, err := runCLI(t, "", "balance", "--api", srv.URL+"/api", "--token", "tok-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "Account 5555000011")
	assert.Contains(t, out, "Balance $ 2,500.00")
}

func TestTransactionsTable(t *testing.T) {
	srv := (&stubBank{}).server(t)

	out, err := runCLI(t, "", "transactions", "--api", srv.URL+"/api", "--token", "tok-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "+$300.00")
	assert.Contains(t, out, "-$45.25")
}

func TestTransferConfirmed(t *testing.T) {
	bank := &stubBank{}
	srv := bank.server(t)

	out, err := runCLI(t, "y\n", "transfer", "--api", srv.URL+"/api", "--token", "tok-cli",
		"--to", "123-456-7890", "--amount", "100", "--pin", "1234")
	require.NoError(t, err)
	assert.Contains(t, out, "Recipient: Jane Doe")
	assert.Contains(t, out, "Transfer successful! Sent $ 100.00 to Jane Doe (1234567890).")
	require.Equal(t, 1, bank.transferCount())
	assert.Equal(t, "1234567890", bank.transfers[0]["recipientAccountNumber"])
}

func TestTransferDeclinedSendsNothing(t *testing.T) {
	bank := &stubBank{}
	srv := bank.server(t)

	out, err := runCLI(t, "n\n", "transfer", "--api", srv.URL+"/api", "--token", "tok-cli",
		"--to", "1234567890", "--amount", "100", "--pin", "1234")
	require.NoError(t, err)
	assert.Contains(t, out, "Transfer cancelled.")
	assert.Equal(t, 0, bank.transferCount())
}

func TestTransferUnknownRecipient(t *testing.T) {
	bank := &stubBank{}
	srv := bank.server(t)

	_, err := runCLI(t, "", "transfer", "--api", srv.URL+"/api", "--token", "tok-cli",
		"--to", "999", "--amount", "100", "--pin", "1234", "--yes")
	require.Error(t, err)
	assert.Equal(t, "No such account", app.UserMessage(err))
	assert.Equal(t, 0, bank.transferCount())
}

func TestTransferInvalidPINRejectedLocally(t *testing.T) {
	bank := &stubBank{}
	srv := bank.server(t)

	_, err := runCLI(t, "", "transfer", "--api", srv.URL+"/api", "--token", "tok-cli",
		"--to", "1234567890", "--amount", "100", "--pin", "12", "--yes")
	require.Error(t, err)
	assert.True(t, app.IsValidation(err))
	assert.Equal(t, 0, bank.transferCount())
}

func TestExportWritesCSV(t *testing.T) {
	srv := (&stubBank{}).server(t)
	path := filepath.Join(t.TempDir(), "tx.csv")

	_, err := runCLI(t, "", "export", "--api", srv.URL+"/api", "--token", "tok-cli", "--out", path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Transaction ID,Date,Description,Type,Amount", lines[0])
	assert.Equal(t, "4,2026-05-02T11:00:00,Power bill,PAYMENT,-45.25", lines[2])
}
