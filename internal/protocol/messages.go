// ABOUTME: Lumen node protocol message type definitions
// ABOUTME: Defines the JSON control messages exchanged with LED nodes
package protocol

// Version is the protocol revision spoken by this build.
const Version = 1

// Message types
const (
	TypeNodeHello   = "node/hello"
	TypeNodeState   = "node/state"
	TypeServerHello = "server/hello"
	TypeServerError = "server/error"
	TypeGeometry    = "show/geometry"
	TypeShowState   = "show/state"
)

// Message is the top-level wrapper for all protocol messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NodeHello is sent by LED nodes to initiate the handshake
type NodeHello struct {
	NodeID     string      `json:"node_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
	// Capacity is the number of output slots the node can drive.
	Capacity *Capacity `json:"capacity,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// Capacity describes what a node can drive.
type Capacity struct {
	Strips         int `json:"strips"`
	PixelsPerStrip int `json:"pixels_per_strip"`
	Channels       int `json:"channels"`
}

// ServerHello is the server's response to node/hello
type ServerHello struct {
	ServerID  string `json:"server_id"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
	SessionID string `json:"session_id,omitempty"`
}

// ServerError rejects a node.
type ServerError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Geometry announces the layout of the show being played. PixelCounts is
// the fixed slot layout: strip slots first, then bus channel slots.
type Geometry struct {
	ChannelCount   int      `json:"channel_count"`
	PixelsPerStrip []int    `json:"pixels_per_strip"`
	PixelCounts    []uint16 `json:"pixel_counts"`
	FrameCount     int      `json:"frame_count"`
	DurationMs     uint32   `json:"duration_ms"`
}

// ShowState reports the transport state of the show.
type ShowState struct {
	State    string `json:"state"` // "playing", "paused" or "stopped"
	Position uint64 `json:"position_ms"`
	Frame    int    `json:"frame"`
}

// NodeState reports a node's health back to the server.
type NodeState struct {
	State    string `json:"state"` // "synchronized" or "error"
	Received int64  `json:"received"`
	Dropped  int64  `json:"dropped"`
}
