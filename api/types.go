// Package api defines the wire types exchanged between a Shaka edge
// device and the CrowdSurfer backend. It carries no behavior; the
// agent's clients and the test backends both marshal through it.
package api

// Backend endpoint paths, relative to the configured base URL.
const (
	// HeartbeatPath receives device registration heartbeats. A device
	// without a token posts here until an operator approves it.
	HeartbeatPath = "/api/v1/devices/heartbeat"

	// DeploymentPath serves the deployment bundle to authorized
	// devices, authenticated with a bearer token.
	DeploymentPath = "/api/v1/devices/deployment"
)

// StatusUnauthorized is returned in a heartbeat response while the
// device is registered but not yet approved by an operator.
const StatusUnauthorized = "unauthorized"

// Telemetry is the resource-usage block embedded in every heartbeat.
// The bootstrap stage reports a static zero block; collecting real
// values belongs to the full edge software installed later.
type Telemetry struct {
	CPUUsage        float64 `json:"cpu_usage"`
	MemoryUsage     float64 `json:"memory_usage"`
	DiskUsage       float64 `json:"disk_usage"`
	WifiClientCount int     `json:"wifi_client_count"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
}

// HeartbeatRequest is the JSON body posted to HeartbeatPath.
type HeartbeatRequest struct {
	SerialNumber    string    `json:"serial_number"`
	FirmwareVersion string    `json:"firmware_version"`
	Telemetry       Telemetry `json:"telemetry"`
	Timestamp       string    `json:"timestamp"`
}

// HeartbeatResponse is the backend's answer to a heartbeat. Exactly
// one of DeviceToken (authorization granted) or Status (still pending)
// is expected on a 200 response.
type HeartbeatResponse struct {
	DeviceToken string `json:"device_token,omitempty"`
	Status      string `json:"status,omitempty"`
	Message     string `json:"message,omitempty"`
}
