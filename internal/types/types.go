package types

import (
	"time"
)

// DataType identifies the kind of record a sync operation concerns.
// The set is closed; anything else is rejected at the boundary.
type DataType string

const (
	DataTypeDevice     DataType = "device"
	DataTypeBattery    DataType = "battery"
	DataTypeScreenshot DataType = "screenshot"
	DataTypeLog        DataType = "log"
)

// Valid reports whether d is one of the known data types.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeDevice, DataTypeBattery, DataTypeScreenshot, DataTypeLog:
		return true
	}
	return false
}

// Device is a tethered iOS device known to this agent.
// Devices are upserted by UDID; re-seeing a device refreshes LastSeen.
type Device struct {
	ID         int64     `json:"id"`
	UDID       string    `json:"udid"`
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	IOSVersion string    `json:"ios_version"`
	LastSeen   time.Time `json:"last_seen"`
	Synced     bool      `json:"synced"`
}

// BatterySample is one battery reading for a device.
type BatterySample struct {
	ID         int64     `json:"id"`
	DeviceUDID string    `json:"device_udid"`
	Level      int       `json:"level"`
	State      string    `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
	Synced     bool      `json:"synced"`
}

// Screenshot is metadata for a captured screenshot. The image itself
// lives on disk at Filepath.
type Screenshot struct {
	ID         int64     `json:"id"`
	DeviceUDID string    `json:"device_udid"`
	Filename   string    `json:"filename"`
	Filepath   string    `json:"filepath"`
	CapturedAt time.Time `json:"captured_at"`
	Synced     bool      `json:"synced"`
}

// LogEntry is one captured syslog line.
type LogEntry struct {
	ID         int64     `json:"id"`
	DeviceUDID string    `json:"device_udid"`
	Line       string    `json:"log_entry"`
	Timestamp  time.Time `json:"timestamp"`
	Synced     bool      `json:"synced"`
}
