package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashAddressIsStable(t *testing.T) {
	a := hashAddress("TERM", "AA:BB:CC:00:11:22")
	assert.Equal(t, a, hashAddress("TERM", "aa:bb:cc:00:11:22"))
	assert.Regexp(t, regexp.MustCompile(`^TERM-[0-9A-F]{8}$`), a)
	assert.NotEqual(t, a, hashAddress("OFFICE", "aa:bb:cc:00:11:22"))
}

func TestDeviceIDShape(t *testing.T) {
	id := DeviceID("TERM")
	if id != unknownDevice {
		assert.Regexp(t, regexp.MustCompile(`^TERM-[0-9A-F]{8}$`), id)
	}
}
