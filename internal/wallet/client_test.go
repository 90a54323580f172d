package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"TriPot/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, timeout time.Duration) *Client {
	return NewClient(config.Wallet{
		DefaultBaseURL: url,
		Tenants:        map[string]string{},
		Timeout:        timeout,
	})
}

func TestDebitSuccess(t *testing.T) {
	var got Flow
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Success: true, Message: "ok", Data: json.RawMessage(`{"balance":10}`)})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL+"/api/", time.Second)
	rec, err := c.Debit(context.Background(), Account{Token: "tok-1"}, 500)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-1", auth)
	assert.Equal(t, "/api/submitFlow", path)
	assert.Equal(t, int64(500), got.BetAmount)
	assert.Equal(t, Debit, got.Type)
	assert.NotEmpty(t, got.TransactionID)
	assert.Equal(t, got.TransactionID, rec.TransactionID)
	assert.True(t, rec.Response.Success)
	assert.JSONEq(t, `{"balance":10}`, string(rec.Response.Data))
}

func TestCreditUsesTenantURL(t *testing.T) {
	var typ FlowType
	tenant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var f Flow
		_ = json.NewDecoder(r.Body).Decode(&f)
		typ = f.Type
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer tenant.Close()

	c := NewClient(config.Wallet{
		DefaultBaseURL: "http://127.0.0.1:1",
		Tenants:        map[string]string{"acme": tenant.URL},
		Timeout:        time.Second,
	})
	_, err := c.Credit(context.Background(), Account{Tenant: "acme", Token: "t"}, 290)
	require.NoError(t, err)
	assert.Equal(t, Credit, typ)
}

func TestTenantKeysIgnoreCase(t *testing.T) {
	var hits atomic.Int32
	acme := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer acme.Close()

	p := filepath.Join(t.TempDir(), "config.yaml")
	body := "wallet:\n  defaultBaseURL: \"http://127.0.0.1:1\"\n  timeout: 1s\n  tenants:\n    AcmeCorp: \"" + acme.URL + "\"\n"
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	cfg, err := config.Read(p)
	require.NoError(t, err)

	c := NewClient(cfg.Wallet)
	for _, tenant := range []string{"AcmeCorp", "acmecorp", "ACMECORP"} {
		_, err := c.Debit(context.Background(), Account{Tenant: tenant, Token: "t"}, 1)
		require.NoError(t, err, tenant)
	}
	assert.Equal(t, int32(3), hits.Load())

	// keys given in code keep working whatever their case
	c = NewClient(config.Wallet{Tenants: map[string]string{"AcmeCorp": acme.URL}, Timeout: time.Second})
	assert.Equal(t, acme.URL, c.baseURL("acmeCorp"))
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{Success: false, Message: "insufficient balance"})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).Debit(context.Background(), Account{Token: "t"}, 10)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "insufficient balance", Cause(err))
}

func TestSubmitNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"message":"token expired"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).Debit(context.Background(), Account{Token: "t"}, 10)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, http.StatusUnauthorized, rej.Status)
	assert.Equal(t, "token expired", Cause(err))
}

func TestSubmitNon2xxWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, time.Second).Debit(context.Background(), Account{Token: "t"}, 10)
	assert.Equal(t, "Bad Gateway", Cause(err))
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(srv.URL, 50*time.Millisecond).Debit(context.Background(), Account{Token: "t"}, 10)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "timeout", Cause(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url, time.Second).Debit(context.Background(), Account{Token: "t"}, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "unavailable", Cause(err))
}

func TestSubmitNoTenantURL(t *testing.T) {
	_, err := newTestClient("", time.Second).Debit(context.Background(), Account{Tenant: "ghost"}, 10)
	assert.ErrorIs(t, err, ErrUnavailable)
}
