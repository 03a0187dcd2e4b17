package exception_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/exception"
)

func TestDeriveACHSeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityCritical, exception.DeriveACHSeverity("R02"))
	assert.Equal(t, domain.SeverityCritical, exception.DeriveACHSeverity("R20"))
	assert.Equal(t, domain.SeverityHigh, exception.DeriveACHSeverity("R05"))
	assert.Equal(t, domain.SeverityHigh, exception.DeriveACHSeverity("R29"))
	assert.Equal(t, domain.SeverityMedium, exception.DeriveACHSeverity("R01"))
}

func TestDeriveNSFSeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityMedium, exception.DeriveNSFSeverity(0))
	assert.Equal(t, domain.SeverityMedium, exception.DeriveNSFSeverity(2))
	assert.Equal(t, domain.SeverityHigh, exception.DeriveNSFSeverity(3))
}
