// Package healthcheck defines the checks served on /healthcheck and /deepcheck.
package healthcheck

import "time"

// HealthcheckFunc is a function that returns a status message, and if the check if healthy or not (false).
// Checks are called from http handlers, so they must only look at state that is already known and never
// talk to the backend themselves.
type HealthcheckFunc func() (string, HealthyStatus)

type HealthyStatus bool

const (
	Healthy   = HealthyStatus(true)
	Unhealthy = HealthyStatus(false)
)

// HealthCheckProvider reports whether the process itself can take traffic.
type HealthCheckProvider interface {
	HealthChecks() []HealthcheckFunc
}

// DeepCheckProvider reports on downstream dependencies, such as the backend accepting flushes.
type DeepCheckProvider interface {
	DeepChecks() []HealthcheckFunc
}

// MaybeAppendHealthChecks collects the checks of maybeProvider if it provides any.
func MaybeAppendHealthChecks(healthChecks []HealthcheckFunc, deepChecks []HealthcheckFunc, maybeProvider interface{}) ([]HealthcheckFunc, []HealthcheckFunc) {
	if hcp, ok := maybeProvider.(HealthCheckProvider); ok {
		healthChecks = append(healthChecks, hcp.HealthChecks()...)
	}
	if dcp, ok := maybeProvider.(DeepCheckProvider); ok {
		deepChecks = append(deepChecks, dcp.DeepChecks()...)
	}
	return healthChecks, deepChecks
}

// DeliveryStatus describes the backend and the reports waiting to be delivered to it.
type DeliveryStatus struct {
	Backend        string
	PendingReports int
	PendingBytes   int
	LastDelivery   time.Time // zero if nothing was delivered yet
	LastFailure    time.Time // zero if no delivery failed yet
}

// DeliveryStatusProvider is implemented by servers that deliver reports to a backend.
type DeliveryStatusProvider interface {
	DeliveryStatus() DeliveryStatus
}
