package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
)

const unknownDevice = "UNKNOWN-DEVICE"

// DeviceID derives a stable id such as "TERM-A1B2C3D4" from the first
// active hardware address. Terminals use it as their default peer id and
// the back office reports it as its instance id.
func DeviceID(prefix string) string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return unknownDevice
	}

	for _, i := range interfaces {
		// First active physical interface
		if i.Flags&net.FlagUp != 0 && i.Flags&net.FlagLoopback == 0 && len(i.HardwareAddr) > 0 {
			return hashAddress(prefix, i.HardwareAddr.String())
		}
	}
	return unknownDevice
}

func hashAddress(prefix, mac string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(mac) + "|" + prefix))
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(hash[:])[:8])
}
