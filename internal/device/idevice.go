package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// IMobileDevice is the Collector backed by the libimobiledevice CLI
// tools (idevice_id, ideviceinfo, idevicename, idevicepair,
// idevicescreenshot, idevicesyslog).
type IMobileDevice struct{}

// NewIMobileDevice creates a CLI-backed collector.
func NewIMobileDevice() *IMobileDevice {
	return &IMobileDevice{}
}

// ListDevices implements Collector.
func (c *IMobileDevice) ListDevices(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "idevice_id", "-l").Output()
	if err != nil {
		// idevice_id exits nonzero with empty output when no device
		// is connected.
		if len(out) == 0 {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list devices: %w", err)
	}

	udids := make([]string, 0)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			udids = append(udids, line)
		}
	}
	return udids, nil
}

// DeviceInfo implements Collector.
func (c *IMobileDevice) DeviceInfo(ctx context.Context, udid string) (*Info, error) {
	out, err := exec.CommandContext(ctx, "ideviceinfo", udidArgs(udid)...).Output()
	if err != nil {
		return nil, fmt.Errorf("get device info: %w", err)
	}
	return parseDeviceInfo(string(out)), nil
}

// DeviceName implements Collector.
func (c *IMobileDevice) DeviceName(ctx context.Context, udid string) (string, error) {
	out, err := exec.CommandContext(ctx, "idevicename", udidArgs(udid)...).Output()
	if err != nil {
		return "", fmt.Errorf("get device name: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// BatteryInfo implements Collector.
func (c *IMobileDevice) BatteryInfo(ctx context.Context, udid string) (*BatteryInfo, error) {
	args := append(udidArgs(udid), "-q", "com.apple.mobile.battery")
	out, err := exec.CommandContext(ctx, "ideviceinfo", args...).Output()
	if err != nil {
		return nil, fmt.Errorf("get battery info: %w", err)
	}
	return parseBatteryInfo(string(out)), nil
}

// CheckPairing implements Collector. Any failure is reported as
// "not paired" rather than an error; idevicepair exits nonzero for
// untrusted devices.
func (c *IMobileDevice) CheckPairing(ctx context.Context, udid string) (bool, error) {
	args := append(udidArgs(udid), "validate")
	out, err := exec.CommandContext(ctx, "idevicepair", args...).Output()
	if err != nil {
		return false, nil
	}
	return strings.Contains(string(out), "SUCCESS"), nil
}

// CaptureScreenshot implements Collector.
func (c *IMobileDevice) CaptureScreenshot(ctx context.Context, udid, outputPath string) error {
	args := append(udidArgs(udid), outputPath)
	if err := exec.CommandContext(ctx, "idevicescreenshot", args...).Run(); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	return nil
}

// Syslog implements Collector. Closing the returned reader kills the
// idevicesyslog process.
func (c *IMobileDevice) Syslog(ctx context.Context, udid string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "idevicesyslog", udidArgs(udid)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("start syslog: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start syslog: %w", err)
	}
	return &syslogStream{cmd: cmd, stdout: stdout}, nil
}

// syslogStream wraps the idevicesyslog process so Close reaps it.
type syslogStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (s *syslogStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *syslogStream) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}

func udidArgs(udid string) []string {
	if udid == "" {
		return nil
	}
	return []string{"-u", udid}
}

// parseKeyValues parses the "Key: Value" line format shared by the
// ideviceinfo tools.
func parseKeyValues(output string) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key != "" && value != "" {
			values[key] = value
		}
	}
	return values
}

func parseDeviceInfo(output string) *Info {
	values := parseKeyValues(output)
	return &Info{
		UDID:         values["UniqueDeviceID"],
		Name:         values["DeviceName"],
		Model:        values["ProductType"],
		IOSVersion:   values["ProductVersion"],
		SerialNumber: values["SerialNumber"],
		WiFiAddress:  values["WiFiAddress"],
		Raw:          values,
	}
}

func parseBatteryInfo(output string) *BatteryInfo {
	values := parseKeyValues(output)
	level, _ := strconv.Atoi(values["BatteryCurrentCapacity"])
	return &BatteryInfo{
		Level:                 level,
		IsCharging:            values["BatteryIsCharging"] == "true",
		ExternalConnected:     values["ExternalConnected"] == "true",
		ExternalChargeCapable: values["ExternalChargeCapable"] == "true",
		Raw:                   values,
	}
}
