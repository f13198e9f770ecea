package handlers

import "time"

// Response is the envelope used by the health endpoints.
//
// Resource handlers return raw DTOs on success and RFC 7807 problem
// responses (problem.go) on failure; the envelope survives only where
// external probes already depend on its shape.
type Response struct {
	// Status indicates success or failure
	Status string `json:"status"`

	// Timestamp of the response
	Timestamp time.Time `json:"timestamp"`

	// Data contains the response payload
	Data any `json:"data,omitempty"`

	// Error contains error details if status is error
	Error string `json:"error,omitempty"`
}

// healthyResponse creates a healthy health-check response.
func healthyResponse(data any) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// unhealthyResponse creates an unhealthy health-check response.
func unhealthyResponse(err string) Response {
	return Response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     err,
	}
}
