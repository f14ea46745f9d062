package exchange

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atmx/clamm-engine/internal/auth"
	"github.com/atmx/clamm-engine/internal/decimal"
	"github.com/atmx/clamm-engine/internal/engine"
	"github.com/atmx/clamm-engine/internal/model"
	"github.com/atmx/clamm-engine/internal/store"
	"github.com/atmx/clamm-engine/internal/tickmath"
)

const defaultPageSize = 50

// --- Response types ---

// PoolView is a pool with its key and a human-readable price.
type PoolView struct {
	Key   string     `json:"key"`
	ID    string     `json:"id"`
	Price string     `json:"price"`
	Pool  model.Pool `json:"pool"`
}

type PoolsResponse struct {
	Pools []PoolView `json:"pools"`
	Total uint16     `json:"total"`
}

type PositionsResponse struct {
	Owner     common.Address   `json:"owner"`
	Positions []model.Position `json:"positions"`
	Total     uint32           `json:"total"`
}

type WithdrawProtocolFeeResponse struct {
	X decimal.TokenAmount `json:"x"`
	Y decimal.TokenAmount `json:"y"`
}

func poolView(key model.PoolKey, pool model.Pool) PoolView {
	return PoolView{Key: key.String(), ID: key.Hex(), Price: price(pool.SqrtPrice), Pool: pool}
}

// Routes mounts the API on r. Mutations require a bearer token; the
// caller is the token's subject.
func (s *Service) Routes(r chi.Router, issuer *auth.Issuer) {
	r.Get("/fee-tiers", s.ListFeeTiers)
	r.Get("/pools", s.ListPools)
	r.Get("/pools/{poolKey}", s.GetPool)
	r.Get("/pools/{poolKey}/ticks/{index}", s.GetTick)
	r.Get("/pools/{poolKey}/swaps", s.ListPoolSwaps)
	r.Get("/positions/{owner}", s.ListPositions)
	r.Get("/positions/{owner}/{index}", s.GetPosition)
	r.Get("/protocol-fee", s.GetProtocolFee)
	r.Post("/quote", s.Quote)
	r.Post("/quote/route", s.QuoteRoute)

	r.Group(func(r chi.Router) {
		r.Use(issuer.Middleware)

		r.Post("/fee-tiers", s.AddFeeTier)
		r.Delete("/fee-tiers", s.RemoveFeeTier)
		r.Post("/pools", s.CreatePool)
		r.Put("/pools/{poolKey}/fee-receiver", s.ChangeFeeReceiver)
		r.Post("/pools/{poolKey}/withdraw-protocol-fee", s.WithdrawProtocolFee)
		r.Put("/protocol-fee", s.ChangeProtocolFee)
		r.Post("/swap", s.Swap)
		r.Post("/swap/route", s.SwapRoute)

		r.Get("/account/balances", s.GetBalances)
		r.Get("/account/swaps", s.ListAccountSwaps)
		r.Post("/account/deposit", s.Deposit)
		r.Post("/account/withdraw", s.Withdraw)
		r.Post("/account/positions", s.CreatePosition)
		r.Delete("/account/positions/{index}", s.RemovePosition)
		r.Post("/account/positions/{index}/transfer", s.TransferPosition)
		r.Post("/account/positions/{index}/claim", s.ClaimFee)
	})
}

// --- Admin ---

// AddFeeTier handles POST /api/v1/fee-tiers
func (s *Service) AddFeeTier(w http.ResponseWriter, r *http.Request) {
	s.feeTier(w, r, engine.OpAddFeeTier, s.state.AddFeeTier, http.StatusCreated)
}

// RemoveFeeTier handles DELETE /api/v1/fee-tiers
func (s *Service) RemoveFeeTier(w http.ResponseWriter, r *http.Request) {
	s.feeTier(w, r, engine.OpRemoveFeeTier, s.state.RemoveFeeTier, http.StatusOK)
}

func (s *Service) feeTier(w http.ResponseWriter, r *http.Request, op engine.Op, fn func(common.Address, model.FeeTier) error, status int) {
	var req FeeTierRequest
	if !decode(w, r, &req) {
		return
	}
	tier, err := parseFeeTier(req.Fee, req.TickSpacing)
	if err != nil {
		s.fail(w, op, err)
		return
	}
	caller := mustCaller(r)
	if err := s.exec(op, func() error { return fn(caller, tier) }); err != nil {
		s.fail(w, op, err)
		return
	}
	respond(w, status, tier)
}

// ListFeeTiers handles GET /api/v1/fee-tiers
func (s *Service) ListFeeTiers(w http.ResponseWriter, _ *http.Request) {
	var tiers []model.FeeTier
	s.read(func() { tiers = s.state.GetFeeTiers() })
	if tiers == nil {
		tiers = []model.FeeTier{}
	}
	respond(w, http.StatusOK, tiers)
}

// GetProtocolFee handles GET /api/v1/protocol-fee
func (s *Service) GetProtocolFee(w http.ResponseWriter, _ *http.Request) {
	var fee decimal.Percentage
	s.read(func() { fee = s.state.ProtocolFee() })
	respond(w, http.StatusOK, ProtocolFeeRequest{Fee: fee.RawString()})
}

// ChangeProtocolFee handles PUT /api/v1/protocol-fee
func (s *Service) ChangeProtocolFee(w http.ResponseWriter, r *http.Request) {
	var req ProtocolFeeRequest
	if !decode(w, r, &req) {
		return
	}
	fee, err := decimal.Parse[decimal.PercentageSpec](req.Fee)
	if err != nil {
		s.fail(w, engine.OpChangeProtocolFee, err)
		return
	}
	caller := mustCaller(r)
	if err := s.exec(engine.OpChangeProtocolFee, func() error {
		return s.state.ChangeProtocolFee(caller, fee)
	}); err != nil {
		s.fail(w, engine.OpChangeProtocolFee, err)
		return
	}
	respond(w, http.StatusOK, req)
}

// ChangeFeeReceiver handles PUT /api/v1/pools/{poolKey}/fee-receiver
func (s *Service) ChangeFeeReceiver(w http.ResponseWriter, r *http.Request) {
	key, ok := poolKeyParam(w, r)
	if !ok {
		return
	}
	var req FeeReceiverRequest
	if !decode(w, r, &req) {
		return
	}
	caller := mustCaller(r)
	var pool model.Pool
	if err := s.exec(engine.OpChangeFeeReceiver, func() error {
		if err := s.state.ChangeFeeReceiver(caller, key, common.HexToAddress(req.Receiver)); err != nil {
			return err
		}
		var err error
		pool, err = s.state.GetPool(key)
		return err
	}); err != nil {
		s.fail(w, engine.OpChangeFeeReceiver, err)
		return
	}
	respond(w, http.StatusOK, poolView(key, pool))
}

// WithdrawProtocolFee handles POST /api/v1/pools/{poolKey}/withdraw-protocol-fee
func (s *Service) WithdrawProtocolFee(w http.ResponseWriter, r *http.Request) {
	key, ok := poolKeyParam(w, r)
	if !ok {
		return
	}
	caller := mustCaller(r)
	var resp WithdrawProtocolFeeResponse
	if err := s.exec(engine.OpWithdrawProtocolFee, func() error {
		var err error
		resp.X, resp.Y, err = s.state.WithdrawProtocolFee(caller, key)
		return err
	}); err != nil {
		s.fail(w, engine.OpWithdrawProtocolFee, err)
		return
	}
	respond(w, http.StatusOK, resp)
}

// --- Pools ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if !decode(w, r, &req) {
		return
	}
	tier, err := parseFeeTier(req.Fee, req.TickSpacing)
	if err != nil {
		s.fail(w, engine.OpCreatePool, err)
		return
	}
	var initPrice decimal.SqrtPrice
	if req.InitSqrtPrice == "" {
		initPrice, err = tickmath.SqrtPriceAt(req.InitTick)
	} else {
		initPrice, err = decimal.Parse[decimal.SqrtPriceSpec](req.InitSqrtPrice)
	}
	if err != nil {
		s.fail(w, engine.OpCreatePool, err)
		return
	}

	caller := mustCaller(r)
	var key model.PoolKey
	var pool model.Pool
	if err := s.exec(engine.OpCreatePool, func() error {
		var err error
		key, err = s.state.CreatePool(caller, common.HexToAddress(req.TokenA), common.HexToAddress(req.TokenB), tier, initPrice, req.InitTick)
		if err != nil {
			return err
		}
		pool, err = s.state.GetPool(key)
		return err
	}); err != nil {
		s.fail(w, engine.OpCreatePool, err)
		return
	}
	respond(w, http.StatusCreated, poolView(key, pool))
}

// ListPools handles GET /api/v1/pools?offset=&size=
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	offset, err := queryUint(r, "offset", 0, math.MaxUint16)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	size, err := queryUint(r, "size", defaultPageSize, math.MaxUint16)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var pools []engine.PoolState
	var total uint16
	s.read(func() { pools, total = s.state.GetPools(uint16(offset), uint16(size)) })

	resp := PoolsResponse{Pools: make([]PoolView, 0, len(pools)), Total: total}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, poolView(p.Key, p.Pool))
	}
	respond(w, http.StatusOK, resp)
}

// GetPool handles GET /api/v1/pools/{poolKey}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	key, ok := poolKeyParam(w, r)
	if !ok {
		return
	}
	var pool model.Pool
	var err error
	s.read(func() { pool, err = s.state.GetPool(key) })
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	respond(w, http.StatusOK, poolView(key, pool))
}

// GetTick handles GET /api/v1/pools/{poolKey}/ticks/{index}
func (s *Service) GetTick(w http.ResponseWriter, r *http.Request) {
	key, ok := poolKeyParam(w, r)
	if !ok {
		return
	}
	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		writeError(w, "invalid tick index", http.StatusBadRequest)
		return
	}
	var tick model.Tick
	s.read(func() { tick, err = s.state.GetTick(key, int32(index)) })
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	respond(w, http.StatusOK, tick)
}

// ListPoolSwaps handles GET /api/v1/pools/{poolKey}/swaps
func (s *Service) ListPoolSwaps(w http.ResponseWriter, r *http.Request) {
	key, ok := poolKeyParam(w, r)
	if !ok {
		return
	}
	receipts, err := s.store.ListSwapReceiptsByPool(r.Context(), key)
	if err != nil {
		s.log.Error("list pool swaps failed", zap.String("pool", key.String()), zap.Error(err))
		writeError(w, "failed to list swaps", http.StatusInternalServerError)
		return
	}
	if receipts == nil {
		receipts = []store.SwapReceipt{}
	}
	respond(w, http.StatusOK, receipts)
}

// --- Positions ---

// CreatePosition handles POST /api/v1/account/positions
func (s *Service) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if !decode(w, r, &req) {
		return
	}
	key, err := model.ParsePoolKey(req.PoolKey)
	if err != nil {
		s.fail(w, engine.OpCreatePosition, err)
		return
	}
	liq, err := decimal.Parse[decimal.LiquiditySpec](req.Liquidity)
	if err != nil {
		s.fail(w, engine.OpCreatePosition, err)
		return
	}
	slipLo, err := sqrtPriceOr(req.SlippageLower, tickmath.MinSqrtPrice)
	if err != nil {
		s.fail(w, engine.OpCreatePosition, err)
		return
	}
	slipHi, err := sqrtPriceOr(req.SlippageUpper, tickmath.MaxSqrtPrice)
	if err != nil {
		s.fail(w, engine.OpCreatePosition, err)
		return
	}

	caller := mustCaller(r)
	var change engine.PositionChange
	if err := s.exec(engine.OpCreatePosition, func() error {
		change, err = s.state.CreatePosition(caller, key, req.LowerTick, req.UpperTick, liq, slipLo, slipHi)
		return err
	}); err != nil {
		s.fail(w, engine.OpCreatePosition, err)
		return
	}
	respond(w, http.StatusCreated, change)
}

// RemovePosition handles DELETE /api/v1/account/positions/{index}
func (s *Service) RemovePosition(w http.ResponseWriter, r *http.Request) {
	s.positionChange(w, r, engine.OpRemovePosition, s.state.RemovePosition)
}

// ClaimFee handles POST /api/v1/account/positions/{index}/claim
func (s *Service) ClaimFee(w http.ResponseWriter, r *http.Request) {
	s.positionChange(w, r, engine.OpClaimFee, s.state.ClaimFee)
}

func (s *Service) positionChange(w http.ResponseWriter, r *http.Request, op engine.Op, fn func(common.Address, uint32) (engine.PositionChange, error)) {
	index, ok := positionIndexParam(w, r)
	if !ok {
		return
	}
	caller := mustCaller(r)
	var change engine.PositionChange
	if err := s.exec(op, func() error {
		var err error
		change, err = fn(caller, index)
		return err
	}); err != nil {
		s.fail(w, op, err)
		return
	}
	respond(w, http.StatusOK, change)
}

// TransferPosition handles POST /api/v1/account/positions/{index}/transfer
func (s *Service) TransferPosition(w http.ResponseWriter, r *http.Request) {
	index, ok := positionIndexParam(w, r)
	if !ok {
		return
	}
	var req TransferPositionRequest
	if !decode(w, r, &req) {
		return
	}
	caller := mustCaller(r)
	receiver := common.HexToAddress(req.Receiver)
	var moved model.Position
	if err := s.exec(engine.OpTransferPosition, func() error {
		var err error
		if moved, err = s.state.GetPosition(caller, index); err != nil {
			return err
		}
		return s.state.TransferPosition(caller, index, receiver)
	}); err != nil {
		s.fail(w, engine.OpTransferPosition, err)
		return
	}
	respond(w, http.StatusOK, moved)
}

// ListPositions handles GET /api/v1/positions/{owner}?offset=&size=
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	offset, err := queryUint(r, "offset", 0, math.MaxUint32)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	size, err := queryUint(r, "size", defaultPageSize, math.MaxUint32)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := PositionsResponse{Owner: owner}
	s.read(func() { resp.Positions, resp.Total = s.state.GetPositions(owner, uint32(offset), uint32(size)) })
	if resp.Positions == nil {
		resp.Positions = []model.Position{}
	}
	respond(w, http.StatusOK, resp)
}

// GetPosition handles GET /api/v1/positions/{owner}/{index}
// The response carries the position's pool and both boundary ticks.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressParam(w, r, "owner")
	if !ok {
		return
	}
	index, ok := positionIndexParam(w, r)
	if !ok {
		return
	}
	var pa engine.PositionWithAssociates
	var err error
	s.read(func() { pa, err = s.state.GetPositionWithAssociates(owner, index) })
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	respond(w, http.StatusOK, pa)
}

// --- Swaps ---

// Quote handles POST /api/v1/quote
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if !decode(w, r, &req) {
		return
	}
	params, err := swapParams(req)
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	var res engine.SwapResult
	s.read(func() { res, err = s.state.Quote(params) })
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	respond(w, http.StatusOK, res)
}

// Swap handles POST /api/v1/swap
func (s *Service) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if !decode(w, r, &req) {
		return
	}
	params, err := swapParams(req)
	if err != nil {
		s.fail(w, engine.OpSwap, err)
		return
	}
	caller := mustCaller(r)
	var res engine.SwapResult
	if err := s.exec(engine.OpSwap, func() error {
		res, err = s.state.Swap(caller, params)
		return err
	}); err != nil {
		s.fail(w, engine.OpSwap, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// QuoteRoute handles POST /api/v1/quote/route
func (s *Service) QuoteRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decode(w, r, &req) {
		return
	}
	amountIn, _, _, hops, err := routeParams(req)
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	var res engine.RouteResult
	s.read(func() { res, err = s.state.QuoteRoute(amountIn, hops) })
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	respond(w, http.StatusOK, res)
}

// SwapRoute handles POST /api/v1/swap/route
func (s *Service) SwapRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decode(w, r, &req) {
		return
	}
	amountIn, expected, slippage, hops, err := routeParams(req)
	if err != nil {
		s.fail(w, engine.OpSwapRoute, err)
		return
	}
	caller := mustCaller(r)
	var res engine.RouteResult
	if err := s.exec(engine.OpSwapRoute, func() error {
		res, err = s.state.SwapRoute(caller, amountIn, expected, slippage, hops)
		return err
	}); err != nil {
		s.fail(w, engine.OpSwapRoute, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// --- Account ---

// Deposit handles POST /api/v1/account/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, "deposit", func(caller, token common.Address, amount decimal.TokenAmount) error {
		return s.book.Deposit(caller, token, amount)
	})
}

// Withdraw handles POST /api/v1/account/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	s.transfer(w, r, "withdraw", func(caller, token common.Address, amount decimal.TokenAmount) error {
		return s.book.Withdraw(caller, token, amount)
	})
}

func (s *Service) transfer(w http.ResponseWriter, r *http.Request, kind string, fn func(caller, token common.Address, amount decimal.TokenAmount) error) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := decimal.Parse[decimal.TokenAmountSpec](req.Amount)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	caller := mustCaller(r)
	token := common.HexToAddress(req.Token)

	var balances store.Balances
	s.read(func() {
		if err = fn(caller, token, amount); err == nil {
			balances = s.book.Balances(caller)
		}
	})
	if err != nil {
		writeError(w, err.Error(), statusOf(err))
		return
	}
	if err := s.store.SaveBalances(r.Context(), caller, balances); err != nil {
		s.log.Error("persist balances failed", zap.String("account", caller.Hex()), zap.Error(err))
		writeError(w, "failed to persist balances", http.StatusInternalServerError)
		return
	}
	s.log.Info("account "+kind,
		zap.String("account", caller.Hex()),
		zap.String("token", token.Hex()),
		zap.String("amount", amount.RawString()),
	)
	respond(w, http.StatusOK, balances)
}

// GetBalances handles GET /api/v1/account/balances
func (s *Service) GetBalances(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	var balances store.Balances
	s.read(func() { balances = s.book.Balances(caller) })
	if balances == nil {
		balances = store.Balances{}
	}
	respond(w, http.StatusOK, balances)
}

// ListAccountSwaps handles GET /api/v1/account/swaps
func (s *Service) ListAccountSwaps(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	receipts, err := s.store.ListSwapReceiptsByAccount(r.Context(), caller)
	if err != nil {
		s.log.Error("list account swaps failed", zap.String("account", caller.Hex()), zap.Error(err))
		writeError(w, "failed to list swaps", http.StatusInternalServerError)
		return
	}
	if receipts == nil {
		receipts = []store.SwapReceipt{}
	}
	respond(w, http.StatusOK, receipts)
}

// --- Helpers ---

func parseFeeTier(fee string, spacing uint16) (model.FeeTier, error) {
	f, err := decimal.Parse[decimal.PercentageSpec](fee)
	if err != nil {
		return model.FeeTier{}, err
	}
	return model.NewFeeTier(f, spacing)
}

func sqrtPriceOr(raw string, fallback decimal.SqrtPrice) (decimal.SqrtPrice, error) {
	if raw == "" {
		return fallback, nil
	}
	return decimal.Parse[decimal.SqrtPriceSpec](raw)
}

func swapParams(req SwapRequest) (engine.SwapParams, error) {
	key, err := model.ParsePoolKey(req.PoolKey)
	if err != nil {
		return engine.SwapParams{}, err
	}
	amount, err := decimal.Parse[decimal.TokenAmountSpec](req.Amount)
	if err != nil {
		return engine.SwapParams{}, err
	}
	fallback := tickmath.MaxSqrtPrice
	if req.XToY {
		fallback = tickmath.MinSqrtPrice
	}
	limit, err := sqrtPriceOr(req.SqrtPriceLimit, fallback)
	if err != nil {
		return engine.SwapParams{}, err
	}
	return engine.SwapParams{
		PoolKey:        key,
		XToY:           req.XToY,
		Amount:         amount,
		ByAmountIn:     req.ByAmountIn,
		SqrtPriceLimit: limit,
	}, nil
}

func routeParams(req RouteRequest) (amountIn, expected decimal.TokenAmount, slippage decimal.Percentage, hops []model.SwapHop, err error) {
	if amountIn, err = decimal.Parse[decimal.TokenAmountSpec](req.AmountIn); err != nil {
		return
	}
	if req.ExpectedAmountOut != "" {
		if expected, err = decimal.Parse[decimal.TokenAmountSpec](req.ExpectedAmountOut); err != nil {
			return
		}
	}
	if req.Slippage != "" {
		if slippage, err = decimal.Parse[decimal.PercentageSpec](req.Slippage); err != nil {
			return
		}
	}
	hops = make([]model.SwapHop, 0, len(req.Hops))
	for _, h := range req.Hops {
		var key model.PoolKey
		if key, err = model.ParsePoolKey(h.PoolKey); err != nil {
			return
		}
		hops = append(hops, model.SwapHop{PoolKey: key, XToY: h.XToY})
	}
	return
}

func poolKeyParam(w http.ResponseWriter, r *http.Request) (model.PoolKey, bool) {
	key, err := model.ParsePoolKey(chi.URLParam(r, "poolKey"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return model.PoolKey{}, false
	}
	return key, true
}

func positionIndexParam(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 32)
	if err != nil {
		writeError(w, "invalid position index", http.StatusBadRequest)
		return 0, false
	}
	return uint32(index), true
}

func addressParam(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		writeError(w, "invalid "+name+" address", http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func queryUint(r *http.Request, name string, def, limit uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v > limit {
		return 0, fmt.Errorf("invalid query parameter %s", name)
	}
	return v, nil
}

// mustCaller returns the authenticated caller. Routes using it sit behind
// the auth middleware.
func mustCaller(r *http.Request) common.Address {
	caller, _ := auth.Caller(r.Context())
	return caller
}

// fail writes err with its mapped status. Server errors are logged; client
// errors are only counted.
func (s *Service) fail(w http.ResponseWriter, op engine.Op, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("operation failed", zap.String("op", string(op)), zap.Error(err))
	} else {
		s.log.Debug("operation rejected", zap.String("op", string(op)), zap.Error(err))
	}
	writeError(w, err.Error(), status)
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	respond(w, status, map[string]string{"error": message})
}
