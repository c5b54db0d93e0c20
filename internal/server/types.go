// Package server provides the HTTP layer of the vertical converter: the
// conversion endpoint, health and metrics routes, and middleware.
package server

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
