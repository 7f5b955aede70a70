package modelcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectPrecision_AppleIsAlwaysFP32(t *testing.T) {
	assert.Equal(t, PrecisionFP32, SelectPrecision(DeviceApple, false))
	assert.Equal(t, PrecisionFP32, SelectPrecision(DeviceApple, true))
}

func TestSelectPrecision_CPUTriesInt8OnlyInLocalDev(t *testing.T) {
	assert.Equal(t, PrecisionFP32, SelectPrecision(DeviceCPU, false))
	assert.Equal(t, PrecisionInt8, SelectPrecision(DeviceCPU, true))
}

func TestDetectDevice_ReturnsAKnownConstant(t *testing.T) {
	d := DetectDevice()
	assert.Contains(t, []Device{DeviceCUDA, DeviceApple, DeviceCPU}, d)
}
