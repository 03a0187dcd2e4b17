package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want loanerrors.Disposition
	}{
		{"nil is success", nil, loanerrors.DispositionTreatAsSuccess},
		{"transient retries", loanerrors.TransientIOError{Op: "publish"}, loanerrors.DispositionRetry},
		{"validation is terminal", loanerrors.ValidationError{Message: "bad"}, loanerrors.DispositionTerminal},
		{"business rejection is terminal", loanerrors.BusinessRejectionError{Reason: "stale"}, loanerrors.DispositionTerminal},
		{"conflict is success", loanerrors.ConflictError{Key: "k"}, loanerrors.DispositionTreatAsSuccess},
		{"ordering drops", loanerrors.OrderingError{AggregateID: "p1"}, loanerrors.DispositionDrop},
		{"integrity halts", loanerrors.IntegrityError{AggregateID: "p1"}, loanerrors.DispositionHalt},
		{"config fails fast", loanerrors.ConfigError{Key: "X"}, loanerrors.DispositionFailFast},
		{"unknown error retries", fmt.Errorf("boom"), loanerrors.DispositionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, loanerrors.Classify(tt.err))
		})
	}
}
