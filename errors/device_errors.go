package errors

import (
	stderrors "errors"

	"memdev/jsonx"
)

// DeviceErrorCode represents standardized error codes for device operations
type DeviceErrorCode string

const (
	// General errors
	ErrCodeInternal DeviceErrorCode = "internal_error"

	// Addressing errors
	ErrCodeInvalidOffset  DeviceErrorCode = "invalid_offset"
	ErrCodeOffsetOverflow DeviceErrorCode = "offset_overflow"

	// Allocation errors
	ErrCodeOutOfMemory DeviceErrorCode = "out_of_memory"

	// Registry errors
	ErrCodeDeviceNotFound DeviceErrorCode = "device_not_found"
	ErrCodeDeviceExists   DeviceErrorCode = "device_exists"
	ErrCodeDeviceBusy     DeviceErrorCode = "device_busy"
	ErrCodeHandleClosed   DeviceErrorCode = "handle_closed"

	// Validation errors
	ErrCodeInvalidRequest DeviceErrorCode = "invalid_request"
)

// DeviceError represents a standardized device error
type DeviceError struct {
	Code    DeviceErrorCode `json:"code"`
	Message string          `json:"message"`
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	err, _ := jsonx.Marshal(DeviceError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgInternal        = "Device error, please try again"
	ErrMsgInvalidRequest  = "Request format is invalid"
	ErrMsgDeviceNotFound  = "Device is not registered"
	ErrMsgDeviceExists    = "Device name is already registered"
	ErrMsgDeviceBusy      = "Device still has open handles"
	ErrMsgHandleClosed    = "Handle has already been released"
	ErrMsgRowBudget       = "Cannot allocate block slot %d: row budget of %d exhausted"
	ErrMsgByteBudget      = "Cannot materialize %d bytes for block %d: byte budget of %d exhausted"
	ErrMsgCapacityReserve = "Cannot reserve capacity for %d block slots: row budget is %d"
	ErrMsgRowTooLarge     = "Block index %d does not fit the store's native index width"
	ErrMsgOffsetOverflow  = "Offset %d plus cursor %d exceeds the representable range"
	ErrMsgLengthOverflow  = "In-block offset %d plus transfer length %d exceeds the representable range"
)

// NewError creates a new DeviceError and returns it as error interface
func NewError(code DeviceErrorCode, message string) error {
	return &DeviceError{
		Code:    code,
		Message: message,
	}
}

// CodeOf extracts the device error code from err, or ErrCodeInternal
// when err is not a DeviceError.
func CodeOf(err error) DeviceErrorCode {
	var devErr *DeviceError
	if stderrors.As(err, &devErr) {
		return devErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given device error code.
func IsCode(err error, code DeviceErrorCode) bool {
	var devErr *DeviceError
	return stderrors.As(err, &devErr) && devErr.Code == code
}
