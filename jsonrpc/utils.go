package jsonrpc

import (
	stderrors "errors"
	"net"
	"net/http"
	"strings"

	"memdev/errors"
	"memdev/logx"
)

// JSON-RPC Method name constants
const (
	// Device methods
	MethodDeviceRead  = "device.read"
	MethodDeviceWrite = "device.write"
	MethodDeviceSeek  = "device.seek"
	MethodDeviceStat  = "device.stat"
	MethodDeviceList  = "device.list"

	// Health methods
	MethodHealthCheck = "health.check"
)

func asDeviceError(err error, target **errors.DeviceError) bool {
	return stderrors.As(err, target)
}

func joinHeaderValues(values []string) string {
	return strings.Join(values, ", ")
}

func extractClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		logx.Debug("RPC", "X-Forwarded-For:", xff)
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && net.ParseIP(host) != nil {
		return host
	}
	return "unknown"
}
