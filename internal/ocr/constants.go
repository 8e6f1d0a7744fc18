package ocr

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Health check configuration
	HealthCheckTimeout = 2 * time.Second

	// ExtractTextMethod is the full gRPC method name served by the OCR service.
	ExtractTextMethod = "/gamewatcher.ocr.v1.OCR/ExtractText"
)
