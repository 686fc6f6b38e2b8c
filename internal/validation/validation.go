// Package validation checks sync payload shapes before they are enqueued,
// so a malformed payload is rejected at the boundary instead of burning
// delivery retries against the backend.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/pibridge/pibridge/internal/types"
)

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidatePayload decodes raw into the payload shape for dataType and
// checks its required fields. An unknown data type is itself an error.
func ValidatePayload(dataType types.DataType, raw json.RawMessage) []ValidationError {
	switch dataType {
	case types.DataTypeDevice:
		var p types.DevicePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return malformed(err)
		}
		return ValidateDevicePayload(p)
	case types.DataTypeBattery:
		var p types.BatteryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return malformed(err)
		}
		return ValidateBatteryPayload(p)
	case types.DataTypeScreenshot:
		var p types.ScreenshotPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return malformed(err)
		}
		return ValidateScreenshotPayload(p)
	case types.DataTypeLog:
		var p types.LogPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return malformed(err)
		}
		return ValidateLogPayload(p)
	default:
		return []ValidationError{{Field: "data_type", Message: fmt.Sprintf("unknown data type %q", dataType)}}
	}
}

func malformed(err error) []ValidationError {
	return []ValidationError{{Field: "payload", Message: fmt.Sprintf("malformed JSON: %s", err)}}
}

// ValidateDevicePayload checks a device payload.
func ValidateDevicePayload(p types.DevicePayload) []ValidationError {
	var errs []ValidationError
	if p.UDID == "" {
		errs = append(errs, ValidationError{Field: "udid", Message: "is required"})
	}
	return errs
}

// ValidateBatteryPayload checks a battery payload.
func ValidateBatteryPayload(p types.BatteryPayload) []ValidationError {
	var errs []ValidationError
	if p.DeviceUDID == "" {
		errs = append(errs, ValidationError{Field: "device_udid", Message: "is required"})
	}
	if p.Level < 0 || p.Level > 100 {
		errs = append(errs, ValidationError{Field: "level", Message: "must be between 0 and 100"})
	}
	return errs
}

// ValidateScreenshotPayload checks a screenshot payload.
func ValidateScreenshotPayload(p types.ScreenshotPayload) []ValidationError {
	var errs []ValidationError
	if p.Filename == "" {
		errs = append(errs, ValidationError{Field: "filename", Message: "is required"})
	}
	return errs
}

// ValidateLogPayload checks a log payload.
func ValidateLogPayload(p types.LogPayload) []ValidationError {
	var errs []ValidationError
	if p.DeviceUDID == "" {
		errs = append(errs, ValidationError{Field: "device_udid", Message: "is required"})
	}
	if p.Line == "" {
		errs = append(errs, ValidationError{Field: "log_entry", Message: "is required"})
	}
	return errs
}
