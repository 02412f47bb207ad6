// Package domain holds shared domain primitives: strongly typed identifiers
// that are validated at trust boundaries and cannot be mixed up by the
// compiler.
package domain

import (
	"github.com/google/uuid"

	dErrors "ppdb/pkg/domain-errors"
)

// Typed identifiers. Distinct named types prevent a tenant id from being
// passed where an application id is expected.
type (
	// TenantID identifies an institution (school) on the platform.
	TenantID uuid.UUID

	// ApplicationID identifies a single candidate application.
	ApplicationID uuid.UUID

	// BatchID identifies an intake configuration, which doubles as the
	// batch ("gelombang") an application belongs to.
	BatchID uuid.UUID
)

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }
func (id BatchID) String() string       { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewTenantID returns a fresh random tenant id.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewApplicationID returns a fresh random application id.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }

// NewBatchID returns a fresh random batch id.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseApplicationID validates and returns an ApplicationID.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(u), nil
}

// ParseBatchID validates and returns a BatchID.
func ParseBatchID(s string) (BatchID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return BatchID{}, err
	}
	return BatchID(u), nil
}

// parseUUID enforces the shared invariant: ids must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
