package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/baton/pkg/adapters/gateway"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	method string
	path   string
	query  string
	body   map[string]string
	user   string
	pass   string
}

func newGateway(t *testing.T, status int) (*httptest.Server, func() []seen) {
	t.Helper()
	var mu sync.Mutex
	var got []seen
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		s.user, s.pass, _ = r.BasicAuth()
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&s.body)
		}
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []seen {
		mu.Lock()
		defer mu.Unlock()
		return append([]seen(nil), got...)
	}
}

func TestInvoker_Direct(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK)
	inv, err := gateway.New(srv.URL, gateway.WithMode(gateway.ModeDirect))
	require.NoError(t, err)

	err = inv.Invoke(context.Background(), domain.TriggerRequest{CurrentStage: "a", NextStage: "b", RunID: "r1"})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodGet, got[0].method)
	assert.Equal(t, "/function/b", got[0].path)
	assert.Equal(t, "run_id=r1", got[0].query)
}

func TestInvoker_Relay(t *testing.T) {
	srv, calls := newGateway(t, http.StatusOK)
	inv, err := gateway.New(strings.TrimPrefix(srv.URL, "http://"), gateway.WithBasicAuth("admin", "secret"))
	require.NoError(t, err)
	assert.Equal(t, gateway.ModeRelay, inv.Mode())

	err = inv.Invoke(context.Background(), domain.TriggerRequest{CurrentStage: "mnist-preprocess", NextStage: "mnist-model-build"})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].method)
	assert.Equal(t, "/function/"+domain.DefaultTriggerStage, got[0].path)
	assert.Equal(t, "mnist-preprocess", got[0].body["current_stage"])
	assert.Equal(t, "mnist-model-build", got[0].body["next_stage"])
	assert.Equal(t, "admin", got[0].user)
	assert.Equal(t, "secret", got[0].pass)
}

func TestInvoker_NonSuccessStatus(t *testing.T) {
	srv, _ := newGateway(t, http.StatusBadGateway)
	inv, err := gateway.New(srv.URL, gateway.WithMode(gateway.ModeDirect))
	require.NoError(t, err)

	err = inv.Invoke(context.Background(), domain.TriggerRequest{NextStage: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestInvoker_Validation(t *testing.T) {
	_, err := gateway.New("")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	inv, err := gateway.New("gateway.openfaas:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://gateway.openfaas:8080/function/b", inv.FunctionURL("b"))

	err = inv.Invoke(context.Background(), domain.TriggerRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestParseMode(t *testing.T) {
	m, err := gateway.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, gateway.ModeRelay, m)

	m, err = gateway.ParseMode("DIRECT")
	require.NoError(t, err)
	assert.Equal(t, gateway.ModeDirect, m)

	_, err = gateway.ParseMode("carrier-pigeon")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
