package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DetectionType identifies the kind of anomaly a detector found.
type DetectionType string

// Detection type constants. Only duplicate and recurring are produced today.
const (
	DetectionDuplicate  DetectionType = "duplicate"
	DetectionRecurring  DetectionType = "recurring"
	DetectionPriceDrift DetectionType = "price_drift"
	DetectionAnomaly    DetectionType = "anomaly"
)

// Severity is the risk level assigned to a detection.
type Severity string

// Severity constants.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// EvidenceVendor is the evidence key carrying the vendor a detection belongs to.
// Scoring and ranking learn vendor identity only through this key.
const EvidenceVendor = "vendor"

// UnknownVendor is used when a detection carries no vendor evidence.
const UnknownVendor = "unknown"

// detectionNamespace seeds deterministic detection ids.
var detectionNamespace = uuid.MustParse("6f1d3a9e-2c47-4b8e-9f0a-5d6c7e8b9a01")

// Evidence is the free-form supporting data attached to a detection.
type Evidence map[string]any

// DetectionResult is an immutable finding produced by a detector. Updates
// are made with the With* methods, which return a new value.
type DetectionResult struct {
	Evidence              Evidence        `json:"supporting_evidence"`
	FinancialImpact       decimal.Decimal `json:"financial_impact_estimate"`
	ID                    string          `json:"detection_id"`
	Type                  DetectionType   `json:"detection_type"`
	Rule                  string          `json:"rule_triggered"`
	Severity              Severity        `json:"risk_severity"`
	Currency              string          `json:"currency"`
	RelatedTransactionIDs []string        `json:"related_transaction_ids"`
	Confidence            float64         `json:"confidence_score"`
}

// NewDetectionID derives a stable id from the detection's identity so that
// re-running the same batch reproduces the same ids.
func NewDetectionID(kind DetectionType, rule, currency string, relatedIDs []string) string {
	key := string(kind) + "\x1f" + rule + "\x1f" + currency + "\x1f" + strings.Join(relatedIDs, "\x1e")
	return uuid.NewSHA1(detectionNamespace, []byte(key)).String()
}

// NewDetection builds a validated DetectionResult with a generated id.
func NewDetection(
	kind DetectionType,
	relatedIDs []string,
	rule string,
	evidence Evidence,
	impact decimal.Decimal,
	confidence float64,
	severity Severity,
	currency string,
) (DetectionResult, error) {
	ids := make([]string, len(relatedIDs))
	copy(ids, relatedIDs)

	d := DetectionResult{
		ID:                    NewDetectionID(kind, rule, currency, ids),
		Type:                  kind,
		RelatedTransactionIDs: ids,
		Rule:                  rule,
		Evidence:              evidence,
		FinancialImpact:       impact,
		Confidence:            confidence,
		Severity:              severity,
		Currency:              currency,
	}
	if err := d.Validate(); err != nil {
		return DetectionResult{}, err
	}
	return d, nil
}

// Validate ensures the DetectionResult honors its invariants.
func (d DetectionResult) Validate() error {
	if len(d.RelatedTransactionIDs) == 0 {
		return fmt.Errorf("detection must reference at least one transaction")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence score must be between 0 and 1, got %.2f", d.Confidence)
	}
	if _, ok := d.Evidence[EvidenceVendor]; !ok {
		return fmt.Errorf("detection evidence must include %q", EvidenceVendor)
	}
	return nil
}

// Vendor returns the vendor recorded in the evidence, or UnknownVendor.
func (d DetectionResult) Vendor() string {
	v, ok := d.Evidence[EvidenceVendor]
	if !ok {
		return UnknownVendor
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return UnknownVendor
	}
	return s
}

// WithSeverity returns a copy of d carrying the given severity. Evidence and
// related ids are shared with d; neither is ever mutated.
func (d DetectionResult) WithSeverity(s Severity) DetectionResult {
	d.Severity = s
	return d
}

// SortedRelatedIDs returns the related transaction ids in ascending order.
func (d DetectionResult) SortedRelatedIDs() []string {
	ids := make([]string, len(d.RelatedTransactionIDs))
	copy(ids, d.RelatedTransactionIDs)
	sort.Strings(ids)
	return ids
}

// DetectionLess orders detections by type, currency, the string form of the
// impact and finally the sorted related transaction ids.
func DetectionLess(a, b DetectionResult) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if a.Currency != b.Currency {
		return a.Currency < b.Currency
	}
	ai, bi := a.FinancialImpact.String(), b.FinancialImpact.String()
	if ai != bi {
		return ai < bi
	}
	return compareIDs(a.SortedRelatedIDs(), b.SortedRelatedIDs()) < 0
}

// SortDetections sorts detections in place into their canonical order.
func SortDetections(ds []DetectionResult) {
	sort.SliceStable(ds, func(i, j int) bool {
		return DetectionLess(ds[i], ds[j])
	})
}

func compareIDs(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
