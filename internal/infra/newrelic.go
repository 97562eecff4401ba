package infra

import (
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewNewRelic starts the New Relic agent. Without a license key it returns a
// nil application, which every caller treats as monitoring disabled.
func NewNewRelic(appName, licenseKey string) (*newrelic.Application, error) {
	if licenseKey == "" {
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(appName),
		newrelic.ConfigLicense(licenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("start new relic: %w", err)
	}
	return app, nil
}
