package modelcache

import (
	"math"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// paramCountPattern extracts a parameter count like "8B", "270m", "3.1b"
// from a model identifier, per spec §8's boundary behaviors.
var paramCountPattern = regexp.MustCompile(`(\d+\.?\d*)[bBmM]`)

const defaultParamsB = 7.0

// bytesPerParam gives the per-parameter byte cost at each precision.
var bytesPerParam = map[Precision]float64{
	PrecisionBF16: 2,
	PrecisionFP32: 4,
	PrecisionInt8: 1,
}

const overheadFactor = 1.2

// EstimateBytes parses the parameter count from name (defaulting to 7B
// when absent) and returns the estimated resident footprint at the given
// precision, including a 1.2x overhead factor for activations/buffers.
func EstimateBytes(name string, precision Precision) int64 {
	params := parseParamCountB(name) * 1e9
	perParam, ok := bytesPerParam[precision]
	if !ok {
		perParam = bytesPerParam[PrecisionFP32]
	}
	return int64(params * perParam * overheadFactor)
}

func parseParamCountB(name string) float64 {
	match := paramCountPattern.FindStringSubmatch(name)
	if match == nil {
		return defaultParamsB
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return defaultParamsB
	}

	// "m"/"M" suffix means millions of params, scale down to billions.
	suffix := name[strings.Index(name, match[0])+len(match[1]):]
	if len(suffix) > 0 && (suffix[0] == 'm' || suffix[0] == 'M') {
		return value / 1000
	}
	return value
}

// AvailableBytes reports free memory for the given device: device free
// memory when an accelerator is present, else host free memory. The
// accelerator path has no portable Go API (see DESIGN.md); it degrades
// to host memory on anything but Linux+CUDA's nvidia-smi.
func AvailableBytes(device Device) int64 {
	if device == DeviceCUDA {
		if free, ok := cudaFreeBytes(); ok {
			return free
		}
	}
	return hostFreeBytes()
}

// UsableCeiling applies the fragmentation-adjusted availability rule
// supplemented from original_source/inference-service/src/utils/memory.py:
// the usable ceiling is available memory scaled down by the configured
// soft limit, not raw available memory.
func UsableCeiling(available int64, softLimit float64) int64 {
	return int64(math.Round(float64(available) * (1 - softLimit)))
}

func hostFreeBytes() int64 {
	if runtime.GOOS == "linux" {
		if free, ok := linuxMemInfoFree(); ok {
			return free
		}
	}
	// No portable free-memory syscall on other platforms; assume a
	// generous default so eviction pressure is driven by measured
	// resident set growth rather than a guess at host capacity.
	return 64 << 30
}

func linuxMemInfoFree() (int64, bool) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemAvailable:") {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return 0, false
			}
			kb, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return 0, false
			}
			return kb * 1024, true
		}
	}
	return 0, false
}
