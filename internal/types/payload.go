package types

// Payload shapes carried by sync operations. Each data type has exactly
// one shape; the payload is a snapshot of the record at enqueue time,
// not a delta.

// DevicePayload is the sync payload for a device upsert.
type DevicePayload struct {
	UDID       string `json:"udid"`
	Name       string `json:"name,omitempty"`
	Model      string `json:"model,omitempty"`
	IOSVersion string `json:"ios_version,omitempty"`
}

// BatteryPayload is the sync payload for a battery sample.
type BatteryPayload struct {
	DeviceUDID string `json:"device_udid"`
	Level      int    `json:"level"`
	State      string `json:"state"`
}

// ScreenshotPayload is the sync payload for screenshot metadata.
type ScreenshotPayload struct {
	DeviceUDID string `json:"device_udid,omitempty"`
	Filename   string `json:"filename"`
	Filepath   string `json:"filepath,omitempty"`
}

// LogPayload is the sync payload for a syslog line.
type LogPayload struct {
	DeviceUDID string `json:"device_udid"`
	Line       string `json:"log_entry"`
}
