// Package device acquires readings from the tethered iOS device via the
// libimobiledevice command-line tools. The Collector interface keeps the
// HTTP layer and tests free of any direct shelling-out.
package device

import (
	"context"
	"io"
)

// Info is the parsed output of ideviceinfo.
type Info struct {
	UDID         string            `json:"udid"`
	Name         string            `json:"name"`
	Model        string            `json:"model"`
	IOSVersion   string            `json:"ios_version"`
	SerialNumber string            `json:"serial_number,omitempty"`
	WiFiAddress  string            `json:"wifi_address,omitempty"`
	Raw          map[string]string `json:"raw,omitempty"`
}

// BatteryInfo is the parsed output of the battery domain query.
type BatteryInfo struct {
	Level                 int               `json:"level"`
	IsCharging            bool              `json:"is_charging"`
	ExternalConnected     bool              `json:"external_connected"`
	ExternalChargeCapable bool              `json:"external_charge_capable"`
	Raw                   map[string]string `json:"raw,omitempty"`
}

// Collector produces readings from a connected device. An empty udid
// means "whichever device is connected".
type Collector interface {
	// ListDevices returns the UDIDs of all connected devices.
	ListDevices(ctx context.Context) ([]string, error)

	// DeviceInfo returns detailed device information.
	DeviceInfo(ctx context.Context, udid string) (*Info, error)

	// DeviceName returns just the device name.
	DeviceName(ctx context.Context, udid string) (string, error)

	// BatteryInfo returns the current battery reading.
	BatteryInfo(ctx context.Context, udid string) (*BatteryInfo, error)

	// CheckPairing reports whether the device trusts this host.
	CheckPairing(ctx context.Context, udid string) (bool, error)

	// CaptureScreenshot writes a PNG screenshot to outputPath.
	CaptureScreenshot(ctx context.Context, udid, outputPath string) error

	// Syslog opens a live system log stream. The caller must close the
	// reader to stop the underlying process.
	Syslog(ctx context.Context, udid string) (io.ReadCloser, error)
}
