package models

type Health struct {
	Status  string `json:"status"` // healthy | unhealthy
	Service string `json:"service"`
	// Checks maps a dependency name to "connected" or its error.
	Checks map[string]string `json:"checks,omitempty"`
}
