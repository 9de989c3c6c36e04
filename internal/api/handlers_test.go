package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ordbridge/teleburnd/internal/guard"
	"github.com/ordbridge/teleburnd/internal/metrics"
	"github.com/ordbridge/teleburnd/internal/simulate"
	"github.com/ordbridge/teleburnd/internal/token"
	"github.com/ordbridge/teleburnd/internal/txbuild"
	"github.com/ordbridge/teleburnd/internal/verify"
	"github.com/ordbridge/teleburnd/pkg/types"
)

const sampleRef = "6fb976ab49dcec017f1e201e84395983204ae1a7c2abf7ced0a85d692e442799i0"

func key(seed byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = seed
	}
	return solana.PublicKeyFromBytes(b[:])
}

type stubAccounts struct {
	mints    map[solana.PublicKey]token.MintInfo
	holdings map[solana.PublicKey]token.HoldingInfo
}

func (s *stubAccounts) DetectMint(_ context.Context, mint solana.PublicKey) (token.MintInfo, error) {
	if info, ok := s.mints[mint]; ok {
		return info, nil
	}
	return token.MintInfo{Address: mint, Variant: types.VariantUnsupported}, nil
}

func (s *stubAccounts) Holding(_ context.Context, account solana.PublicKey) (token.HoldingInfo, error) {
	if info, ok := s.holdings[account]; ok {
		return info, nil
	}
	return token.HoldingInfo{}, fmt.Errorf("%w: %s", token.ErrAccountNotFound, account)
}

type stubChain struct{}

func (stubChain) LatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash(key(0xbb)), nil
}

func (stubChain) FeeForMessage(context.Context, string) (uint64, bool, error) {
	return 5000, true, nil
}

type stubSim struct{}

func (stubSim) Simulate(context.Context, *solana.Transaction) (*solrpc.SimulateTransactionResult, error) {
	units := uint64(9000)
	return &solrpc.SimulateTransactionResult{UnitsConsumed: &units}, nil
}

type stubScanner struct {
	supply uint64
	memos  []verify.SigMemo
}

func (s *stubScanner) TokenSupply(context.Context, solana.PublicKey) (uint64, error) {
	return s.supply, nil
}

func (s *stubScanner) SignatureMemos(context.Context, solana.PublicKey, int) ([]verify.SigMemo, error) {
	return s.memos, nil
}

func (s *stubScanner) HoldingAmount(context.Context, solana.PublicKey) (uint64, error) {
	return 0, nil
}

type testEnv struct {
	server *Server
	router http.Handler
	payer  solana.PublicKey
	owner  solana.PublicKey
	mint   solana.PublicKey
}

func newTestEnv(t *testing.T, frozen bool) *testEnv {
	t.Helper()

	payer, owner, mint := key(0x01), key(0x02), key(0x03)
	holding, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}

	accounts := &stubAccounts{
		mints: map[solana.PublicKey]token.MintInfo{
			mint: {
				Address:      mint,
				OwnerProgram: solana.TokenProgramID,
				Supply:       1,
				Variant:      types.VariantStandard,
			},
		},
		holdings: map[solana.PublicKey]token.HoldingInfo{
			holding: {Address: holding, Mint: mint, Owner: owner, Amount: 1, Frozen: frozen},
		},
	}

	builder := txbuild.NewBuilder(accounts, stubChain{})

	srv := NewServer(&ServerConfig{
		ListenAddr:     "127.0.0.1:0",
		AllowedOrigins: []string{"*"},
	})
	srv.SetBuilder(builder)
	srv.SetRunner(simulate.NewRunner(builder, stubSim{}))
	srv.SetVerifier(verify.NewService(&stubScanner{
		supply: 0,
		memos:  []verify.SigMemo{{Signature: "sig1", Memo: "teleburn:" + sampleRef}},
	}))
	srv.SetKillSwitch(guard.NewKillSwitch("", ""))
	srv.SetMetrics(metrics.NewCollector())

	return &testEnv{
		server: srv,
		router: srv.buildRouter(),
		payer:  payer,
		owner:  owner,
		mint:   mint,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.RemoteAddr = "192.0.2.1:40000"
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func retireBody(e *testEnv) string {
	return fmt.Sprintf(`{"payer":%q,"owner":%q,"mint":%q,"inscription":%q,"method":"burn"}`,
		e.payer, e.owner, e.mint, sampleRef)
}

func TestRetireEndpoint(t *testing.T) {
	e := newTestEnv(t, false)

	rec := e.do(t, http.MethodPost, "/v1/teleburn/retire", retireBody(e))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("envelope not successful: %+v", resp)
	}

	data, _ := json.Marshal(resp.Data)
	var result types.BuildResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Transaction == "" || result.SizeBytes == 0 || len(result.Signers) == 0 {
		t.Errorf("incomplete build result: %+v", result)
	}
}

func TestRetireFrozenReturnsConflict(t *testing.T) {
	e := newTestEnv(t, true)

	rec := e.do(t, http.MethodPost, "/v1/teleburn/retire", retireBody(e))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d, want 409: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Code != types.CodeFrozenAccount {
		t.Errorf("code = %q, want frozen_account", resp.Code)
	}
}

func TestRetireMalformedInscription(t *testing.T) {
	e := newTestEnv(t, false)

	body := fmt.Sprintf(`{"payer":%q,"owner":%q,"mint":%q,"inscription":"UPPERCASEi0","method":"burn"}`,
		e.payer, e.owner, e.mint)
	rec := e.do(t, http.MethodPost, "/v1/teleburn/retire", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Code != types.CodeValidation {
		t.Errorf("code = %q, want validation_error", resp.Code)
	}
}

func TestSimulateEndpoint(t *testing.T) {
	e := newTestEnv(t, false)

	body := fmt.Sprintf(`{"payer":%q,"owner":%q,"mint":%q,"inscription":%q,"method":"burn"}`,
		e.payer, e.owner, e.mint, sampleRef)
	rec := e.do(t, http.MethodPost, "/v1/teleburn/simulate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)

	data, _ := json.Marshal(resp.Data)
	var report types.DryRunReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Success || len(report.Steps) != 6 {
		t.Errorf("unexpected report: success=%v steps=%d", report.Success, len(report.Steps))
	}
}

func TestVerifyEndpoint(t *testing.T) {
	e := newTestEnv(t, false)

	rec := e.do(t, http.MethodGet, "/v1/verify?mint="+e.mint.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)

	data, _ := json.Marshal(resp.Data)
	var result types.VerifyResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != types.StatusRetired || result.Confidence != types.ConfidenceHigh {
		t.Errorf("got %s/%s, want retired/high", result.Status, result.Confidence)
	}
	if result.Reference != sampleRef {
		t.Errorf("reference = %q", result.Reference)
	}
}

func TestDeriveEndpointDeterministic(t *testing.T) {
	e := newTestEnv(t, false)

	first := e.do(t, http.MethodGet, "/v1/derive?inscription="+sampleRef, "")
	second := e.do(t, http.MethodGet, "/v1/derive?inscription="+sampleRef, "")
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status %d/%d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("derivation must be deterministic across requests")
	}

	bad := e.do(t, http.MethodGet, "/v1/derive?inscription=nonsense", "")
	if bad.Code != http.StatusBadRequest {
		t.Errorf("malformed reference: status %d, want 400", bad.Code)
	}
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	e := newTestEnv(t, false)
	limiter := guard.NewRateLimiter(2, time.Minute, 0)
	e.server.SetRateLimiter(limiter)

	for i := 0; i < 2; i++ {
		rec := e.do(t, http.MethodGet, "/v1/derive?inscription="+sampleRef, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("missing limit header: %v", rec.Header())
		}
	}

	rec := e.do(t, http.MethodGet, "/v1/derive?inscription="+sampleRef, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 must carry Retry-After")
	}
	if resp := decodeEnvelope(t, rec); resp.Code != types.CodeRateLimited {
		t.Errorf("code = %q", resp.Code)
	}

	// A different client identity is unaffected.
	req := httptest.NewRequest(http.MethodGet, "/v1/derive?inscription="+sampleRef, nil)
	req.RemoteAddr = "198.51.100.7:1234"
	other := httptest.NewRecorder()
	e.router.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Errorf("independent identity: status %d", other.Code)
	}
}

func TestKillSwitchBlocksMutatingOnly(t *testing.T) {
	e := newTestEnv(t, false)
	t.Setenv(guard.DefaultKillSwitchEnv, "1")

	rec := e.do(t, http.MethodPost, "/v1/teleburn/retire", retireBody(e))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
	if resp := decodeEnvelope(t, rec); resp.Code != types.CodeKillSwitchActive {
		t.Errorf("code = %q", resp.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("503 must carry Retry-After")
	}

	// Read-only endpoints keep answering.
	if rec := e.do(t, http.MethodGet, "/v1/derive?inscription="+sampleRef, ""); rec.Code != http.StatusOK {
		t.Errorf("derive during kill switch: status %d", rec.Code)
	}
}

func TestCORSPreflightUnknownPath(t *testing.T) {
	e := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/v1/nope", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("missing CORS header: %v", rec.Header())
	}
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t, false)

	rec := e.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("liveness probe: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("/v1/health status %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t, false)

	rec := e.do(t, http.MethodGet, "/v1/teleburn/retire", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", rec.Code)
	}
}
