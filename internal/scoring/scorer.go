package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/rwa-platform/channel-service/internal/model"
)

// Fee bounds as fractions of the request amount.
var (
	feeFloorRate   = decimal.RequireFromString("0.0001")
	feeCeilingRate = decimal.RequireFromString("0.01")
)

// Availability penalties.
const (
	kycPenalty      = 0.3
	netWorthPenalty = 0.1
	paymentPenalty  = 0.4
)

const (
	feeCurrency = "USD"

	processInstant  = "instant"
	processWithdraw = "1-24 hours"
	processKYC      = "1-3 days"
	processKYCDepo  = "1-2 hours"
	processNoKYC    = "not required"

	responseInstant = "instant"
	responseOneHour = "1hour"
)

// Scorer computes match results. It holds no mutable state and is safe for
// concurrent use.
type Scorer struct {
	weights   Weights
	liquidity LiquidityTable
}

// NewScorer creates a scorer with the given weights and liquidity table.
func NewScorer(weights Weights, liquidity LiquidityTable) *Scorer {
	return &Scorer{weights: weights, liquidity: liquidity}
}

// Weights returns the weights in use.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score evaluates channel ch for req. The result carries no redirect.
func (s *Scorer) Score(ch *model.Channel, req *model.MatchRequest) *model.MatchResult {
	fees := EstimateFees(ch, req.Amount)

	sub := model.SubScores{
		Fee:            FeeScore(req.Amount, fees.TotalFee),
		Availability:   AvailabilityScore(ch, req),
		UserExperience: UserExperienceScore(ch),
		Security:       SecurityScore(ch),
		Liquidity:      s.liquidity.Lookup(ch.Type),
	}

	return &model.MatchResult{
		ChannelID:      ch.ID,
		Channel:        ch,
		MatchScore:     s.weights.Apply(sub),
		Scores:         sub,
		EstimatedFees:  fees,
		Availability:   CheckAvailability(ch, req),
		ProcessingTime: EstimateProcessingTime(ch),
	}
}

// EstimateFees returns the trading fee (amount × taker rate), the crypto
// withdrawal fee and their sum.
func EstimateFees(ch *model.Channel, amount float64) *model.FeeEstimate {
	trading := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(ch.Fees.Trading.Taker))
	withdrawal := decimal.NewFromFloat(ch.Fees.Withdrawal.Crypto)

	return &model.FeeEstimate{
		TradingFee:    trading.InexactFloat64(),
		WithdrawalFee: withdrawal.InexactFloat64(),
		TotalFee:      trading.Add(withdrawal).InexactFloat64(),
		Currency:      feeCurrency,
	}
}

// FeeScore is 1 at or below the floor, 0 at or above the ceiling and linear
// in between.
func FeeScore(amount, totalFee float64) float64 {
	amt := decimal.NewFromFloat(amount)
	total := decimal.NewFromFloat(totalFee)
	floor := amt.Mul(feeFloorRate)
	ceiling := amt.Mul(feeCeilingRate)

	if total.LessThanOrEqual(floor) {
		return 1
	}
	if total.GreaterThanOrEqual(ceiling) {
		return 0
	}
	frac := total.Sub(floor).Div(ceiling.Sub(floor))
	return clamp01(decimal.NewFromInt(1).Sub(frac).InexactFloat64())
}

// AvailabilityScore starts at 1 and subtracts a penalty for each gate the
// request does not pass. An empty payment method is never supported.
func AvailabilityScore(ch *model.Channel, req *model.MatchRequest) float64 {
	score := 1.0
	if ch.Compliance.KYCRequired && req.KYCLevel == "" {
		score -= kycPenalty
	}
	if ch.Compliance.MinimumNetWorth > 0 {
		score -= netWorthPenalty
	}
	if !ch.SupportsPaymentMethod(req.PaymentMethod) {
		score -= paymentPenalty
	}
	return max(score, 0)
}

// UserExperienceScore rewards API access, support channels and fast responses.
func UserExperienceScore(ch *model.Channel) float64 {
	score := 0.0
	if ch.HasTradingAPI() {
		score += 0.3
	}
	if ch.Support.Chat {
		score += 0.2
	}
	if ch.Support.Phone != "" {
		score += 0.2
	}
	switch ch.Support.ResponseTime {
	case responseInstant:
		score += 0.3
	case responseOneHour:
		score += 0.2
	default:
		score += 0.1
	}
	return min(score, 1)
}

// SecurityScore rewards insurance, segregated custody and audits.
func SecurityScore(ch *model.Channel) float64 {
	score := 0.0
	if ch.Security.Insurance != nil && ch.Security.Insurance.Coverage > 0 {
		score += 0.4
	}
	if ch.Security.Custody.Segregation {
		score += 0.3
	}
	if len(ch.Security.Audits) > 0 {
		score += 0.3
	}
	return min(score, 1)
}

// CheckAvailability reports whether the user can use ch and why not.
func CheckAvailability(ch *model.Channel, req *model.MatchRequest) *model.Availability {
	reasons := []string{}
	if ch.Compliance.KYCRequired && req.KYCLevel == "" {
		reasons = append(reasons, model.ReasonKYCRequired)
	}
	if !ch.SupportsPaymentMethod(req.PaymentMethod) {
		reasons = append(reasons, model.ReasonPaymentUnsupported)
	}
	return &model.Availability{
		Available: len(reasons) == 0,
		Reasons:   reasons,
	}
}

// EstimateProcessingTime returns the expected duration buckets for ch.
func EstimateProcessingTime(ch *model.Channel) *model.ProcessingTime {
	pt := &model.ProcessingTime{
		KYC:        processNoKYC,
		Deposit:    processInstant,
		Trade:      processInstant,
		Withdrawal: processWithdraw,
	}
	if ch.Compliance.KYCRequired {
		pt.KYC = processKYC
		pt.Deposit = processKYCDepo
	}
	return pt
}
