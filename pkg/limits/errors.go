package limits

import "errors"

var (
	// ErrInvalidOrganization is returned for an empty organization ID
	ErrInvalidOrganization = errors.New("invalid organization id")

	// ErrInvalidPlan is returned for an unknown plan name
	ErrInvalidPlan = errors.New("invalid plan name")

	// ErrInvalidPeriod is returned when periodEnd is not after periodStart
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrInvalidResource is returned for an unknown resource kind
	ErrInvalidResource = errors.New("invalid resource")

	// ErrPlanNotFound is returned when the catalog has no entry for a plan
	ErrPlanNotFound = errors.New("plan not found in catalog")

	// ErrStorageUnavailable is returned when the store is nil or unreachable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
