package web

import (
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/pencil-metrics/pencil/pkg/healthcheck"
)

type deliveryReport struct {
	Backend        string `json:"backend"`
	PendingReports int    `json:"pending_reports"`
	PendingBytes   int    `json:"pending_bytes"`
	LastDelivery   string `json:"last_delivery,omitempty"`
	LastFailure    string `json:"last_failure,omitempty"`
}

type healthReport struct {
	OK       []string        `json:"ok"`
	Failed   []string        `json:"failed"`
	Delivery *deliveryReport `json:"delivery,omitempty"`
}

type healthChecker struct {
	logger       logrus.FieldLogger
	healthChecks []healthcheck.HealthcheckFunc
	deepChecks   []healthcheck.HealthcheckFunc
	delivery     healthcheck.DeliveryStatusProvider // may be nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newDeliveryReport(ds healthcheck.DeliveryStatus) *deliveryReport {
	return &deliveryReport{
		Backend:        ds.Backend,
		PendingReports: ds.PendingReports,
		PendingBytes:   ds.PendingBytes,
		LastDelivery:   formatTime(ds.LastDelivery),
		LastFailure:    formatTime(ds.LastFailure),
	}
}

func runHealthChecks(checks []healthcheck.HealthcheckFunc) *healthReport {
	// Empty slices so the lists render as [] rather than null
	report := &healthReport{
		OK:     []string{},
		Failed: []string{},
	}
	for _, check := range checks {
		msg, status := check()
		if status == healthcheck.Healthy {
			report.OK = append(report.OK, msg)
		} else {
			report.Failed = append(report.Failed, msg)
		}
	}
	return report
}

func (hc *healthChecker) respond(resp http.ResponseWriter, report *healthReport) {
	resp.Header().Set("content-type", "application/json")
	if len(report.Failed) > 0 {
		resp.WriteHeader(http.StatusInternalServerError)
	} else {
		resp.WriteHeader(http.StatusOK)
	}
	if err := jsoniter.NewEncoder(resp).Encode(report); err != nil {
		hc.logger.WithError(err).Warn("Failed to write health report")
	}
}

// healthCheck reports if the server is able to receive metrics.
func (hc *healthChecker) healthCheck(resp http.ResponseWriter, req *http.Request) {
	hc.respond(resp, runHealthChecks(hc.healthChecks))
}

// deepCheck reports on delivery to the backend, including what is still waiting for it.
func (hc *healthChecker) deepCheck(resp http.ResponseWriter, req *http.Request) {
	report := runHealthChecks(hc.deepChecks)
	if hc.delivery != nil {
		report.Delivery = newDeliveryReport(hc.delivery.DeliveryStatus())
	}
	hc.respond(resp, report)
}
