package contracts

import "time"

// RiskLevel is the aggregated risk band of a compliance verdict.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CheckKind identifies one compliance check in the battery.
type CheckKind string

const (
	CheckKYC          CheckKind = "kyc"
	CheckAML          CheckKind = "aml"
	CheckSanctions    CheckKind = "sanctions"
	CheckPEP          CheckKind = "pep"
	CheckAdverseMedia CheckKind = "adverse_media"
	CheckRegulatory   CheckKind = "regulatory"
)

// CheckStatus is the outcome of a single compliance check.
type CheckStatus string

const (
	CheckPassed CheckStatus = "passed"
	CheckFailed CheckStatus = "failed"
	CheckError  CheckStatus = "error"
)

// CheckOutcome is the result of one check in the battery.
type CheckOutcome struct {
	Kind       CheckKind
	Status     CheckStatus
	Risk       float64 // axis risk in [0,1]
	Confidence float64
	Duration   time.Duration
	Details    string
}

// Violation tags surfaced in compliance results.
const (
	ViolationSanctionsMatch   = "sanctions_match"
	ViolationPEPMatch         = "pep_match"
	ViolationAMLThreshold     = "aml_threshold_exceeded"
	ViolationKYCIncomplete    = "kyc_incomplete"
	ViolationAdverseMedia     = "adverse_media_hit"
	ViolationRegulatoryBlock  = "regulatory_block"
	ViolationHighRiskCorridor = "high_risk_corridor"
)

// ComplianceResult is the aggregated verdict of the compliance worker.
// OK holds iff no check failed and RiskScore is at or below the
// configured high-risk threshold.
type ComplianceResult struct {
	OK              bool
	RiskScore       float64
	RiskLevel       RiskLevel
	Checks          []CheckOutcome
	Violations      []string
	RequiredActions []string
}
