package routes

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"kalelend/native/kalelend"
	"kalelend/rpc/modules"
)

type platformView struct {
	Admin                string `json:"admin"`
	KaleToken            string `json:"kale_token,omitempty"`
	XLMToken             string `json:"xlm_token,omitempty"`
	Oracle               string `json:"oracle,omitempty"`
	TotalStaked          string `json:"total_staked"`
	TotalBorrowed        string `json:"total_borrowed"`
	TotalCollateral      string `json:"total_collateral"`
	StakingAPY           uint64 `json:"staking_apy"`
	BorrowingAPY         uint64 `json:"borrowing_apy"`
	PlatformFeeRate      uint64 `json:"platform_fee_rate"`
	LiquidationThreshold uint64 `json:"liquidation_threshold"`
	CurrentKalePrice     string `json:"current_kale_price"`
	CurrentXLMPrice      string `json:"current_xlm_price"`
	LastPriceUpdate      uint64 `json:"last_price_update"`
	IsActive             bool   `json:"is_active"`
	Paused               bool   `json:"paused"`
}

func newPlatformView(p *kalelend.PlatformState) platformView {
	return platformView{
		Admin:                p.Admin.String(),
		KaleToken:            p.KaleToken.String(),
		XLMToken:             p.XLMToken.String(),
		Oracle:               p.Oracle.String(),
		TotalStaked:          amountString(p.TotalStaked),
		TotalBorrowed:        amountString(p.TotalBorrowed),
		TotalCollateral:      amountString(p.TotalCollateral),
		StakingAPY:           p.StakingAPY,
		BorrowingAPY:         p.BorrowingAPY,
		PlatformFeeRate:      p.PlatformFeeRate,
		LiquidationThreshold: p.LiquidationThreshold,
		CurrentKalePrice:     amountString(p.CurrentKalePrice),
		CurrentXLMPrice:      amountString(p.CurrentXLMPrice),
		LastPriceUpdate:      p.LastPriceUpdate,
		IsActive:             p.IsActive,
	}
}

type stakeView struct {
	User                string `json:"user"`
	KaleAmount          string `json:"kale_amount"`
	StartTime           uint64 `json:"start_time"`
	LastClaimTime       uint64 `json:"last_claim_time"`
	AutoAdjustEnabled   bool   `json:"auto_adjust_enabled"`
	PriceThreshold      uint64 `json:"price_threshold_bps"`
	LastAdjustmentPrice string `json:"last_adjustment_price"`
	TotalEarned         string `json:"total_earned"`
}

func newStakeView(s *kalelend.StakingPosition) stakeView {
	return stakeView{
		User:                s.User.String(),
		KaleAmount:          amountString(s.KaleAmount),
		StartTime:           s.StartTime,
		LastClaimTime:       s.LastClaimTime,
		AutoAdjustEnabled:   s.AutoAdjustEnabled,
		PriceThreshold:      s.PriceThreshold,
		LastAdjustmentPrice: amountString(s.LastAdjustmentPrice),
		TotalEarned:         amountString(s.TotalEarned),
	}
}

type borrowView struct {
	User              string `json:"user"`
	BorrowedAmount    string `json:"borrowed_amount"`
	CollateralAmount  string `json:"collateral_amount"`
	BorrowTime        uint64 `json:"borrow_time"`
	InterestRate      uint64 `json:"interest_rate"`
	LastPaymentTime   uint64 `json:"last_payment_time"`
	TotalInterestPaid string `json:"total_interest_paid"`
	IsActive          bool   `json:"is_active"`
}

func newBorrowView(b *kalelend.BorrowingPosition) borrowView {
	return borrowView{
		User:              b.User.String(),
		BorrowedAmount:    amountString(b.BorrowedAmount),
		CollateralAmount:  amountString(b.CollateralAmount),
		BorrowTime:        b.BorrowTime,
		InterestRate:      b.InterestRate,
		LastPaymentTime:   b.LastPaymentTime,
		TotalInterestPaid: amountString(b.TotalInterestPaid),
		IsActive:          b.IsActive,
	}
}

type yieldView struct {
	TotalRewardsDistributed string `json:"total_rewards_distributed"`
	StakingRewards          string `json:"staking_rewards"`
	BorrowingFees           string `json:"borrowing_fees"`
	PlatformFees            string `json:"platform_fees"`
	LastDistributionTime    uint64 `json:"last_distribution_time"`
}

func newYieldView(y *kalelend.YieldPool) yieldView {
	return yieldView{
		TotalRewardsDistributed: amountString(y.TotalRewardsDistributed),
		StakingRewards:          amountString(y.StakingRewards),
		BorrowingFees:           amountString(y.BorrowingFees),
		PlatformFees:            amountString(y.PlatformFees),
		LastDistributionTime:    y.LastDistributionTime,
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type errorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Required string `json:"required,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		writeInternalError(w, fmt.Errorf("marshal response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeModuleError(w http.ResponseWriter, modErr *modules.ModuleError) {
	status := modErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	body := errorBody{
		Kind:    modErr.Kind,
		Message: strings.TrimSpace(modErr.Message),
		Field:   modErr.Field,
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	if modErr.Required != nil {
		body.Required = modErr.Required.String()
	}
	if modErr.Actual != nil {
		body.Actual = modErr.Actual.String()
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeModuleError(w, &modules.ModuleError{HTTPStatus: http.StatusBadRequest, Kind: "bad_request", Message: err.Error()})
}

func writeInternalError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	payload, _ := json.Marshal(map[string]errorBody{"error": {Kind: "unknown", Message: err.Error()}})
	_, _ = w.Write(payload)
}

