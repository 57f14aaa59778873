package hook

import (
	"github.com/pkg/errors"

	"github.com/nsxbet/ddlguard/pkg/statement"
)

// SQLStateFeatureNotSupported is reported with every policy violation.
const SQLStateFeatureNotSupported = "0A000"

// ErrPolicyViolation is the sentinel matched by errors.Is for rejections.
var ErrPolicyViolation = errors.New("statement rejected by policy")

// PolicyViolation is returned for a statement the policy rejects. The
// statement was never forwarded.
type PolicyViolation struct {
	// Kind is the kind of the rejected statement, which may be a subcommand
	// of the submitted one.
	Kind    statement.Kind
	Rule    string
	Message string
	Query   string
}

// Error implements the error interface.
func (e *PolicyViolation) Error() string {
	return e.Message
}

// SQLState returns the SQLSTATE code clients see for the rejection.
func (e *PolicyViolation) SQLState() string {
	return SQLStateFeatureNotSupported
}

// Unwrap returns ErrPolicyViolation so errors.Is(err, ErrPolicyViolation) works.
func (e *PolicyViolation) Unwrap() error {
	return ErrPolicyViolation
}

// IsPolicyViolation reports whether err is or wraps a rejection.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPolicyViolation)
}
