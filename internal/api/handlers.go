package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/ordbridge/teleburnd/internal/derive"
	"github.com/ordbridge/teleburnd/internal/inscription"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/simulate"
	"github.com/ordbridge/teleburnd/internal/txbuild"
	"github.com/ordbridge/teleburnd/pkg/types"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 * 1024

// apiResponse is the envelope every endpoint answers with.
type apiResponse struct {
	Success bool            `json:"success"`
	Data    any             `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    types.ErrorCode `json:"code,omitempty"`
}

// SealRequest matches POST /v1/teleburn/seal.
type SealRequest struct {
	Payer            string `json:"payer"`
	Mint             string `json:"mint"`
	Inscription      string `json:"inscription"`
	ComputeUnitPrice uint64 `json:"compute_unit_price,omitempty"`
}

// RetireRequest matches POST /v1/teleburn/retire.
type RetireRequest struct {
	Payer            string `json:"payer"`
	Owner            string `json:"owner"`
	Mint             string `json:"mint"`
	Inscription      string `json:"inscription"`
	Method           string `json:"method"`
	ComputeUnitPrice uint64 `json:"compute_unit_price,omitempty"`
}

// SimulateRequest matches POST /v1/teleburn/simulate.
type SimulateRequest struct {
	Payer          string `json:"payer"`
	Owner          string `json:"owner"`
	Mint           string `json:"mint"`
	Inscription    string `json:"inscription"`
	Method         string `json:"method"`
	IncludePointer bool   `json:"include_pointer,omitempty"`
}

// DeriveResponse matches GET /v1/derive.
type DeriveResponse struct {
	Inscription string `json:"inscription"`
	Address     string `json:"address"`
	Iterations  int    `json:"iterations"`
}

// HealthResponse matches GET /v1/health.
type HealthResponse struct {
	Status    string               `json:"status"`
	Endpoints []rpc.EndpointStatus `json:"endpoints"`
	Timestamp time.Time            `json:"timestamp"`
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", types.CodeValidation)
		return
	}
	var req SealRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payer, ok := parseKey(w, "payer", req.Payer)
	if !ok {
		return
	}
	mint, ok := parseKey(w, "mint", req.Mint)
	if !ok {
		return
	}
	ref, ok := parseRef(w, req.Inscription)
	if !ok {
		return
	}

	built, err := s.builder.BuildSeal(r.Context(), txbuild.SealParams{
		Payer:            payer,
		Mint:             mint,
		Ref:              ref,
		ComputeUnitPrice: req.ComputeUnitPrice,
	})
	s.recordBuild("seal", err)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, built.Result)
}

func (s *Server) handleRetire(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", types.CodeValidation)
		return
	}
	var req RetireRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payer, ok := parseKey(w, "payer", req.Payer)
	if !ok {
		return
	}
	owner, ok := parseKey(w, "owner", req.Owner)
	if !ok {
		return
	}
	mint, ok := parseKey(w, "mint", req.Mint)
	if !ok {
		return
	}
	ref, ok := parseRef(w, req.Inscription)
	if !ok {
		return
	}

	built, err := s.builder.BuildRetire(r.Context(), txbuild.RetireParams{
		Payer:            payer,
		Owner:            owner,
		Mint:             mint,
		Ref:              ref,
		Method:           types.RetirementMethod(req.Method),
		ComputeUnitPrice: req.ComputeUnitPrice,
	})
	s.recordBuild("retire", err)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, built.Result)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", types.CodeValidation)
		return
	}
	var req SimulateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payer, ok := parseKey(w, "payer", req.Payer)
	if !ok {
		return
	}
	owner, ok := parseKey(w, "owner", req.Owner)
	if !ok {
		return
	}
	mint, ok := parseKey(w, "mint", req.Mint)
	if !ok {
		return
	}
	ref, ok := parseRef(w, req.Inscription)
	if !ok {
		return
	}
	method := types.RetirementMethod(req.Method)
	if !method.Valid() {
		writeErrorCode(w, http.StatusBadRequest, "unknown retirement method", types.CodeValidation)
		return
	}

	report := s.runner.Run(r.Context(), simulate.Params{
		Payer:          payer,
		Owner:          owner,
		Mint:           mint,
		Ref:            ref,
		Method:         method,
		IncludePointer: req.IncludePointer,
	})
	if s.collector != nil {
		s.collector.RecordSimulation(report.Success)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", types.CodeValidation)
		return
	}
	mint, ok := parseKey(w, "mint", r.URL.Query().Get("mint"))
	if !ok {
		return
	}

	result, err := s.verifier.Verify(r.Context(), mint)
	if err != nil {
		writeBuildError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorCode(w, http.StatusMethodNotAllowed, "method not allowed", types.CodeValidation)
		return
	}
	id := r.URL.Query().Get("inscription")
	res, err := derive.DeriveString(id)
	if err != nil {
		if errors.Is(err, inscription.ErrMalformed) {
			writeErrorCode(w, http.StatusBadRequest, err.Error(), types.CodeValidation)
			return
		}
		writeErrorCode(w, http.StatusInternalServerError, err.Error(), types.CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, DeriveResponse{
		Inscription: id,
		Address:     res.Address.String(),
		Iterations:  res.Iterations,
	})
}

// handleHealth reports per-endpoint pool state. Degraded means at least
// one endpoint is down but the service still has a healthy one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Timestamp: time.Now().UTC()}
	if s.pool != nil {
		resp.Endpoints = s.pool.Snapshot()
		healthy := 0
		for _, e := range resp.Endpoints {
			if e.Healthy {
				healthy++
			}
		}
		switch {
		case healthy == 0:
			resp.Status = "unavailable"
		case healthy < len(resp.Endpoints):
			resp.Status = "degraded"
		}
	}

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleHealthCheck is the bare liveness probe for load balancers.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) recordBuild(kind string, err error) {
	if s.collector == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.collector.RecordBuild(kind, outcome)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid request body: "+err.Error(), types.CodeValidation)
		return false
	}
	return true
}

func parseKey(w http.ResponseWriter, field, value string) (solana.PublicKey, bool) {
	if value == "" {
		writeErrorCode(w, http.StatusBadRequest, field+" is required", types.CodeValidation)
		return solana.PublicKey{}, false
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid "+field+": "+err.Error(), types.CodeValidation)
		return solana.PublicKey{}, false
	}
	return key, true
}

func parseRef(w http.ResponseWriter, value string) (inscription.Ref, bool) {
	ref, err := inscription.Parse(value)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, err.Error(), types.CodeValidation)
		return inscription.Ref{}, false
	}
	return ref, true
}

// writeBuildError maps domain errors to HTTP status and wire code.
func writeBuildError(w http.ResponseWriter, err error) {
	var (
		verr *txbuild.ValidationError
		uerr *txbuild.UnsupportedVariantError
		ferr *txbuild.FrozenAccountError
		serr *txbuild.SizeExceededError
	)
	switch {
	case errors.As(err, &verr):
		writeErrorCode(w, http.StatusBadRequest, verr.Error(), verr.Code())
	case errors.As(err, &uerr):
		writeErrorCode(w, http.StatusUnprocessableEntity, uerr.Error(), uerr.Code())
	case errors.As(err, &ferr):
		writeErrorCode(w, http.StatusConflict, ferr.Error(), ferr.Code())
	case errors.As(err, &serr):
		writeErrorCode(w, http.StatusRequestEntityTooLarge, serr.Error(), serr.Code())
	case errors.Is(err, rpc.ErrUnavailable):
		writeErrorCode(w, http.StatusServiceUnavailable, err.Error(), types.CodeRPCUnavailable)
	case errors.Is(err, derive.ErrExhausted):
		writeErrorCode(w, http.StatusInternalServerError, err.Error(), types.CodeInternal)
	default:
		writeErrorCode(w, http.StatusInternalServerError, err.Error(), types.CodeInternal)
	}
}

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

// writeErrorCode writes an error envelope.
func writeErrorCode(w http.ResponseWriter, status int, message string, code types.ErrorCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Error: message, Code: code})
}
