package exception

import "github.com/cschwartz85032/loanserve-sub010/internal/domain"

var achCritical = map[string]bool{"R02": true, "R03": true, "R04": true, "R20": true}
var achHigh = map[string]bool{"R05": true, "R07": true, "R10": true, "R29": true}

// DeriveACHSeverity implements the fixed ACH return severity rules of spec
// §4.12.
func DeriveACHSeverity(returnCode string) domain.ExceptionSeverity {
	switch {
	case achCritical[returnCode]:
		return domain.SeverityCritical
	case achHigh[returnCode]:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// DeriveNSFSeverity escalates repeated NSF retries (spec §4.12: "NSF retry
// >2 → high").
func DeriveNSFSeverity(retryCount int) domain.ExceptionSeverity {
	if retryCount > 2 {
		return domain.SeverityHigh
	}

	return domain.SeverityMedium
}

// DefaultSeverity is used for categories with no dedicated escalation rule
// (duplicate, dispute, reconcile_variance, wire_recall).
const DefaultSeverity = domain.SeverityMedium
