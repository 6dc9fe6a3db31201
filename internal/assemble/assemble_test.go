package assemble

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/payload"
)

func TestRunSuccess(t *testing.T) {
	resp := Run(context.Background(), nil, Op{Action: "chain_tvl"}, func(context.Context) (model.ChainTVL, error) {
		return model.ChainTVL{Chain: "Aptos", TVLUSD: 10}, nil
	})
	require.True(t, resp.Valid())
	assert.True(t, resp.Success)
	assert.Equal(t, "Aptos", resp.Result.Chain)
}

func TestRunMalformedPayloadIsDataFormatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"protocols":"not-a-list"}`))
	}))
	defer srv.Close()

	client := httpx.New(2 * time.Second)
	assert.NotPanics(t, func() {
		resp := Run(context.Background(), nil, Op{Action: "top_protocols", Endpoint: srv.URL}, func(ctx context.Context) ([]map[string]any, error) {
			var out []map[string]any
			err := client.GetJSON(ctx, srv.URL, payload.Array(), &out)
			return out, err
		})
		require.True(t, resp.Valid())
		assert.False(t, resp.Success)
		assert.Nil(t, resp.Result)
		assert.Equal(t, "DATA_FORMAT_ERROR", resp.Error.Code)
	})
}

func TestRunClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"transport", errors.New("connection refused"), "API_ERROR"},
		{"unavailable", clierr.New(clierr.CodeUnavailable, "503"), "API_ERROR"},
		{"missing", MissingParam("protocol", "uniswap", "aave"), "INVALID_PARAMS"},
		{"not found", NotFound("protocol %s has no tvl on %s", "thala", "Base"), "NOT_FOUND"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := Run(context.Background(), nil, Op{}, func(context.Context) (int, error) { return 0, tc.err })
			require.True(t, resp.Valid())
			assert.Equal(t, tc.want, resp.Error.Code)
		})
	}
}

func TestRunChecks(t *testing.T) {
	resp := Run(context.Background(), nil, Op{}, func(context.Context) ([]int, error) { return nil, nil }, NonEmpty[int]("pools"))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "no pools found", resp.Error.Message)

	resp = Run(context.Background(), nil, Op{}, func(context.Context) ([]int, error) { return []int{1}, nil }, func([]int) error {
		return errors.New("tvl missing")
	})
	assert.Equal(t, "DATA_FORMAT_ERROR", resp.Error.Code)
}

func TestRunRecoversPanics(t *testing.T) {
	resp := Run(context.Background(), nil, Op{}, func(context.Context) (int, error) { panic("boom") })
	require.True(t, resp.Valid())
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}

func TestFailureLogsRedactedContext(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "warn"}, &buf)
	resp := Failure[int](log, Op{
		Action:   "transfer",
		Endpoint: "/v1/transactions",
		Params:   map[string]any{"recipient": "0x1", "private_key": "0xsecret"},
	}, MissingParam("amount"))

	assert.Equal(t, "INVALID_PARAMS", resp.Error.Code)
	out := buf.String()
	assert.Contains(t, out, "/v1/transactions")
	assert.Contains(t, out, "INVALID_PARAMS")
	assert.Contains(t, out, `"at"`)
	assert.NotContains(t, out, "0xsecret")
}
