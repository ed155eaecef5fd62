package control

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/batcher/internal/core/config"
	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/core/retry"
)

// newNode serves eth_call and eth_gasPrice with a funded, locked account.
func newNode(t *testing.T, hits *atomic.Int32) *httptest.Server {
	unlockSelector := crypto.Keccak256([]byte("userUnlockBlock(address)"))[:4]

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req struct {
			ID     any               `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}

		var result string
		switch req.Method {
		case "eth_gasPrice":
			result = "0x3b9aca00"
		case "eth_call":
			var msg struct {
				Data string `json:"data"`
			}
			_ = json.Unmarshal(req.Params[0], &msg)
			data, _ := hexutil.Decode(msg.Data)
			value := big.NewInt(1_000_000)
			if bytes.HasPrefix(data, unlockSelector) {
				value = big.NewInt(0)
			}
			result = hexutil.Encode(common.LeftPadBytes(value.Bytes(), 32))
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
}

func testConfig(primary, fallback string) *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Eth: config.EthConfig{
			RPCURL:                primary,
			RPCURLFallback:        fallback,
			PaymentServiceAddress: "0x7bc06c482DEAd17c0e297aFbC32f6e63d3846650",
			RequestTimeout:        5 * time.Second,
		},
		Retry: retry.Policy{MinDelay: time.Millisecond, Factor: 2, MaxAttempts: 3},
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://localhost:1", "")
	if _, err := NewApp(context.Background(), cfg); err == nil {
		t.Fatal("expected error without fallback endpoint")
	}
}

func TestApp_Lifecycle(t *testing.T) {
	var primaryHits, fallbackHits atomic.Int32
	primary := newNode(t, &primaryHits)
	defer primary.Close()
	fallback := newNode(t, &fallbackHits)
	defer fallback.Close()

	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(primary.URL, fallback.URL))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	item := domain.VerificationData{
		ProvingSystem:      domain.Groth16Bn254,
		Proof:              domain.Bytes{1, 2, 3},
		PubInput:           domain.Bytes{4},
		VerificationKey:    domain.Bytes{5, 6},
		ProofGeneratorAddr: common.HexToAddress("0x66f9664f97F2b50F62D13eA064982f936dE76657"),
	}
	if err := app.Service().Submit(ctx, item, nil); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if app.Service().Pending() != 0 {
		t.Errorf("pending submissions were not flushed on stop")
	}
	batches, err := app.stores.Repo.ListRecent(ctx, 10)
	if err != nil || len(batches) != 1 {
		t.Fatalf("expected one archived batch, got %d, %v", len(batches), err)
	}
	if fallbackHits.Load() != 0 {
		t.Errorf("healthy primary must serve every read, fallback got %d calls", fallbackHits.Load())
	}
	if primaryHits.Load() == 0 {
		t.Errorf("expected reads against the primary node")
	}
}

func TestProviderCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	clients, err := NewEthClients(testConfig(server.URL, server.URL).Eth)
	if err != nil {
		t.Fatalf("NewEthClients failed: %v", err)
	}
	defer clients.Close()

	check := providerCheck(clients.Primary)
	if err := check(context.Background()); err != nil {
		t.Fatalf("fresh provider should be healthy, got %v", err)
	}
	_, _ = clients.Gas.GasPrice(context.Background())
	err = check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "primary") {
		t.Errorf("expected primary to be reported unavailable, got %v", err)
	}
}
