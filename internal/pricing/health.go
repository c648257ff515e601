package pricing

import "time"

// ProviderHealth is the health state of the price API as seen by this client.
// It backs the /ready endpoint.
type ProviderHealth struct {
	Provider            string        `json:"provider"`
	LastSuccess         time.Time     `json:"lastSuccess"`
	LastFailure         time.Time     `json:"lastFailure"`
	LastError           string        `json:"lastError,omitempty"`
	LastDuration        time.Duration `json:"lastDuration"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	CircuitState        string        `json:"circuitState"`
}

// Healthy reports whether the provider can currently serve requests
func (h ProviderHealth) Healthy() bool {
	return h.CircuitState != "open"
}

// HealthProvider exposes provider health
type HealthProvider interface {
	Health() ProviderHealth
}

// Health returns the current health of the price API
func (c *Client) Health() ProviderHealth {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h := c.health
	h.CircuitState = c.cb.State().String()
	return h
}

func (c *Client) recordHealth(err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = time.Now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}
