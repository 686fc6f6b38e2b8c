package validation

import (
	"encoding/json"
	"testing"

	"github.com/pibridge/pibridge/internal/types"
)

func TestValidateDevicePayload(t *testing.T) {
	errs := ValidateDevicePayload(types.DevicePayload{UDID: "udid-1"})
	if len(errs) != 0 {
		t.Errorf("expected valid payload, got %v", errs)
	}

	errs = ValidateDevicePayload(types.DevicePayload{Name: "phone"})
	if len(errs) != 1 || errs[0].Field != "udid" {
		t.Errorf("expected udid error, got %v", errs)
	}
}

func TestValidateBatteryPayload(t *testing.T) {
	errs := ValidateBatteryPayload(types.BatteryPayload{DeviceUDID: "udid-1", Level: 50, State: "charging"})
	if len(errs) != 0 {
		t.Errorf("expected valid payload, got %v", errs)
	}

	errs = ValidateBatteryPayload(types.BatteryPayload{DeviceUDID: "udid-1", Level: 101})
	if len(errs) != 1 || errs[0].Field != "level" {
		t.Errorf("expected level error, got %v", errs)
	}

	errs = ValidateBatteryPayload(types.BatteryPayload{Level: -1})
	if len(errs) != 2 {
		t.Errorf("expected two errors, got %v", errs)
	}
}

func TestValidateScreenshotPayload(t *testing.T) {
	errs := ValidateScreenshotPayload(types.ScreenshotPayload{Filename: "shot.png"})
	if len(errs) != 0 {
		t.Errorf("expected valid payload, got %v", errs)
	}

	errs = ValidateScreenshotPayload(types.ScreenshotPayload{DeviceUDID: "udid-1"})
	if len(errs) != 1 || errs[0].Field != "filename" {
		t.Errorf("expected filename error, got %v", errs)
	}
}

func TestValidateLogPayload(t *testing.T) {
	errs := ValidateLogPayload(types.LogPayload{DeviceUDID: "udid-1", Line: "boot"})
	if len(errs) != 0 {
		t.Errorf("expected valid payload, got %v", errs)
	}

	errs = ValidateLogPayload(types.LogPayload{})
	if len(errs) != 2 {
		t.Errorf("expected two errors, got %v", errs)
	}
}

func TestValidatePayload(t *testing.T) {
	raw, _ := json.Marshal(types.BatteryPayload{DeviceUDID: "udid-1", Level: 80, State: "unplugged"})
	if errs := ValidatePayload(types.DataTypeBattery, raw); len(errs) != 0 {
		t.Errorf("expected valid payload, got %v", errs)
	}

	if errs := ValidatePayload("bogus", raw); len(errs) != 1 || errs[0].Field != "data_type" {
		t.Errorf("expected data_type error, got %v", errs)
	}

	if errs := ValidatePayload(types.DataTypeLog, json.RawMessage(`{not json`)); len(errs) != 1 || errs[0].Field != "payload" {
		t.Errorf("expected payload error, got %v", errs)
	}
}
