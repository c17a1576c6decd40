package compliance

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remitstream/remitcore/contracts"
)

// Watchlists holds the screening fixtures the checks match against.
// Production embedders replace these with their list-provider feeds.
type Watchlists struct {
	Sanctions        []string
	PEPs             []string
	AdverseMedia     []string
	BlockedCountries []contracts.CountryCode
}

// normalize lowercases and trims a name for list matching.
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (w Watchlists) matches(list []string, name string) bool {
	n := normalize(name)
	if n == "" {
		return false
	}
	for _, entry := range list {
		if normalize(entry) == n {
			return true
		}
	}
	return false
}

func (w Watchlists) countryBlocked(c contracts.CountryCode) bool {
	for _, b := range w.BlockedCountries {
		if b == c {
			return true
		}
	}
	return false
}

// timed stamps a check outcome with its wall time.
func timed(start time.Time, out contracts.CheckOutcome) contracts.CheckOutcome {
	out.Duration = time.Since(start)
	return out
}

// checkKYC verifies the identity descriptors are complete. Runs only
// at or above the KYC amount threshold.
func (s *Screener) checkKYC(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()
	missing := intent.Sender.Name == "" || intent.Sender.Phone == "" ||
		intent.Recipient.Name == "" || intent.Recipient.Phone == ""
	if missing {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckKYC, Status: contracts.CheckFailed,
			Risk: 0.9, Confidence: 0.95, Details: "identity descriptors incomplete",
		})
	}
	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckKYC, Status: contracts.CheckPassed,
		Risk: 0.1, Confidence: 0.95,
	})
}

// checkAML scores structuring risk from the amount relative to the AML
// threshold, blended with the corridor's learned risk pattern.
func (s *Screener) checkAML(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()

	ratio := 0.0
	if s.cfg.AMLThreshold.IsPositive() {
		r, _ := intent.Amount.Div(s.cfg.AMLThreshold).Float64()
		ratio = r
	}
	risk := math.Min(1, 0.2*ratio)

	if p, ok := s.patterns.lookup(intent.Corridor()); ok {
		risk = (risk + p.RiskScore) / 2
	}

	if risk >= 0.8 {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckAML, Status: contracts.CheckFailed,
			Risk: risk, Confidence: 0.85, Details: "transaction volume over AML ceiling",
		})
	}
	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckAML, Status: contracts.CheckPassed,
		Risk: risk, Confidence: 0.85,
	})
}

// checkSanctions screens both parties against the sanctions list.
func (s *Screener) checkSanctions(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()
	if s.lists.matches(s.lists.Sanctions, intent.Sender.Name) ||
		s.lists.matches(s.lists.Sanctions, intent.Recipient.Name) {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckSanctions, Status: contracts.CheckFailed,
			Risk: 1.0, Confidence: 0.99, Details: "party matches sanctions list",
		})
	}
	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckSanctions, Status: contracts.CheckPassed,
		Risk: 0.0, Confidence: 0.99,
	})
}

// checkPEP screens both parties against the politically-exposed list.
func (s *Screener) checkPEP(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()
	if s.lists.matches(s.lists.PEPs, intent.Sender.Name) ||
		s.lists.matches(s.lists.PEPs, intent.Recipient.Name) {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckPEP, Status: contracts.CheckFailed,
			Risk: 0.7, Confidence: 0.9, Details: "party is politically exposed",
		})
	}
	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckPEP, Status: contracts.CheckPassed,
		Risk: 0.0, Confidence: 0.9,
	})
}

// checkAdverseMedia screens both parties against adverse media hits.
func (s *Screener) checkAdverseMedia(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()
	if s.lists.matches(s.lists.AdverseMedia, intent.Sender.Name) ||
		s.lists.matches(s.lists.AdverseMedia, intent.Recipient.Name) {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckAdverseMedia, Status: contracts.CheckFailed,
			Risk: 0.5, Confidence: 0.7, Details: "adverse media coverage found",
		})
	}
	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckAdverseMedia, Status: contracts.CheckPassed,
		Risk: 0.0, Confidence: 0.7,
	})
}

// checkRegulatory verifies neither country is blocked and the corridor
// is not a learned high-risk one.
func (s *Screener) checkRegulatory(intent *contracts.PaymentIntent) contracts.CheckOutcome {
	start := time.Now()

	if s.lists.countryBlocked(intent.Sender.Country) || s.lists.countryBlocked(intent.Recipient.Country) {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckRegulatory, Status: contracts.CheckFailed,
			Risk: 1.0, Confidence: 0.95, Details: "counterparty country blocked",
		})
	}

	if p, ok := s.patterns.lookup(intent.Corridor()); ok && p.RiskScore >= s.cfg.HighRiskThreshold {
		return timed(start, contracts.CheckOutcome{
			Kind: contracts.CheckRegulatory, Status: contracts.CheckFailed,
			Risk: p.RiskScore, Confidence: 0.8, Details: "corridor risk pattern above ceiling",
		})
	}

	return timed(start, contracts.CheckOutcome{
		Kind: contracts.CheckRegulatory, Status: contracts.CheckPassed,
		Risk: 0.05, Confidence: 0.95,
	})
}

// checkWeights are the aggregation weights per check axis.
var checkWeights = map[contracts.CheckKind]float64{
	contracts.CheckSanctions:    0.4,
	contracts.CheckAML:          0.3,
	contracts.CheckPEP:          0.2,
	contracts.CheckKYC:          0.1,
	contracts.CheckAdverseMedia: 0.1,
	contracts.CheckRegulatory:   0.2,
}

// violationFor maps a failed check to its violation tag.
func violationFor(out contracts.CheckOutcome) string {
	switch out.Kind {
	case contracts.CheckSanctions:
		return contracts.ViolationSanctionsMatch
	case contracts.CheckPEP:
		return contracts.ViolationPEPMatch
	case contracts.CheckAML:
		return contracts.ViolationAMLThreshold
	case contracts.CheckKYC:
		return contracts.ViolationKYCIncomplete
	case contracts.CheckAdverseMedia:
		return contracts.ViolationAdverseMedia
	case contracts.CheckRegulatory:
		if strings.Contains(out.Details, "corridor") {
			return contracts.ViolationHighRiskCorridor
		}
		return contracts.ViolationRegulatoryBlock
	default:
		return string(out.Kind) + "_failed"
	}
}

// applies reports whether a check participates for this intent.
func (s *Screener) applies(kind contracts.CheckKind, amount decimal.Decimal) bool {
	switch kind {
	case contracts.CheckKYC:
		return amount.GreaterThanOrEqual(s.cfg.KYCThreshold)
	case contracts.CheckAML:
		return amount.GreaterThanOrEqual(s.cfg.AMLThreshold)
	case contracts.CheckSanctions:
		return s.cfg.EnableSanctions
	case contracts.CheckPEP:
		return s.cfg.EnablePEP
	case contracts.CheckAdverseMedia:
		return s.cfg.EnableAdverseMedia
	case contracts.CheckRegulatory:
		return s.cfg.EnableRegulatory
	default:
		return false
	}
}
