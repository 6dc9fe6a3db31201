package aptos

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

type staticSigner struct{ calls int32 }

func (s *staticSigner) Address() string { return "0xa11ce" }

func (s *staticSigner) Sign(_ context.Context, fn model.EntryFunction) (json.RawMessage, error) {
	atomic.AddInt32(&s.calls, 1)
	body, _ := json.Marshal(map[string]any{
		"sender":    "0xa11ce",
		"payload":   toPayload(fn),
		"signature": map[string]string{"type": "ed25519_signature"},
	})
	return body, nil
}

func testOptions() Options {
	return Options{PollInterval: 10 * time.Millisecond, WaitTimeout: time.Second}
}

func TestSubmitWaitsForCommit(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("invalid body: %v", err)
		}
		if p, _ := body["payload"].(map[string]any); p["function"] != TransferCoinsFunction || p["type"] != "entry_function_payload" {
			t.Errorf("unexpected payload: %v", p)
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"hash":"0xfeed","type":"pending_transaction"}`))
	})
	mux.HandleFunc("/v1/transactions/by_hash/0xfeed", func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&polls, 1) {
		case 1:
			w.WriteHeader(http.StatusNotFound)
		case 2:
			_, _ = w.Write([]byte(`{"hash":"0xfeed","type":"pending_transaction"}`))
		default:
			_, _ = w.Write([]byte(`{"hash":"0xfeed","type":"user_transaction","success":true,"vm_status":"Executed successfully","version":"42"}`))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	signer := &staticSigner{}
	client := New(httpx.New(2*time.Second), srv.URL, signer, testOptions())
	got, err := client.Submit(context.Background(), model.EntryFunction{
		Function:      TransferCoinsFunction,
		TypeArguments: []string{"0x1::aptos_coin::AptosCoin"},
		Arguments:     []any{"0xb0b", "100"},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !got.Success || got.Hash != "0xfeed" || got.Version != "42" {
		t.Fatalf("unexpected result: %+v", got)
	}
	if atomic.LoadInt32(&polls) < 3 {
		t.Fatalf("expected polling until commit, got %d polls", polls)
	}
}

func TestWaitReportsOnChainFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hash":"0xbad","type":"user_transaction","success":false,"vm_status":"Move abort"}`))
	}))
	defer srv.Close()

	client := New(httpx.New(2*time.Second), srv.URL, nil, testOptions())
	got, err := client.Wait(context.Background(), "0xbad")
	if err == nil || got.Success {
		t.Fatalf("expected failure, got %+v err=%v", got, err)
	}
	if got.VMStatus != "Move abort" {
		t.Fatalf("unexpected vm status: %q", got.VMStatus)
	}
}

func TestWaitTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hash":"0x1","type":"pending_transaction"}`))
	}))
	defer srv.Close()

	client := New(httpx.New(time.Second), srv.URL, nil, Options{PollInterval: 5 * time.Millisecond, WaitTimeout: 50 * time.Millisecond})
	_, err := client.Wait(context.Background(), "0x1")
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestWaitStopsOnAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(httpx.New(time.Second), srv.URL, nil, Options{PollInterval: 5 * time.Millisecond, WaitTimeout: time.Minute})
	started := time.Now()
	_, err := client.Wait(context.Background(), "0x1")
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single lookup, got %d", n)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("expected an immediate return, took %s", elapsed)
	}
}

func TestPermanentLookupErrors(t *testing.T) {
	for _, code := range []clierr.Code{clierr.CodeDataFormat, clierr.CodeAuth, clierr.CodeUsage} {
		if !permanent(clierr.New(code, "x")) {
			t.Fatalf("expected code %d to stop polling", code)
		}
	}
	for _, code := range []clierr.Code{clierr.CodeNotFound, clierr.CodeUnavailable, clierr.CodeRateLimited, clierr.CodeTimeout} {
		if permanent(clierr.New(code, "x")) {
			t.Fatalf("expected code %d to keep polling", code)
		}
	}
}

func TestSubmitWithoutSigner(t *testing.T) {
	client := New(httpx.New(time.Second), "http://127.0.0.1:1", nil, testOptions())
	_, err := client.Submit(context.Background(), model.EntryFunction{Function: MintTokenFunction})
	if clierr.TagOf(err) != clierr.TagInvalidParams {
		t.Fatalf("expected INVALID_PARAMS, got %v", err)
	}
}

func TestRemoteSigner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tkn" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req signRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Sender != "0xa11ce" || req.Payload.Function != MintTokenFunction {
			t.Errorf("unexpected request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"sender":"0xa11ce","signature":{"type":"ed25519_signature","signature":"0x00"}}`))
	}))
	defer srv.Close()

	s := NewRemoteSigner(httpx.New(time.Second), srv.URL, "0xA11CE", "tkn")
	signed, err := s.Sign(context.Background(), model.EntryFunction{Function: MintTokenFunction})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if len(signed) == 0 || s.Address() != "0xa11ce" {
		t.Fatalf("unexpected signer output: %s", signed)
	}

	bad := NewRemoteSigner(httpx.New(time.Second), srv.URL, "0xa11ce", "")
	if _, err := bad.Sign(context.Background(), model.EntryFunction{}); clierr.TagOf(err) != clierr.TagAPIError {
		t.Fatalf("expected API_ERROR for rejected signer call, got %v", err)
	}
}
