package modelcache

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// DetectDevice probes for an available accelerator the same way the
// teacher's internal/gpu/backend.go does (shelling out to the vendor CLI
// rather than linking a detection library), falling back to the Apple
// unified-memory path on darwin/arm64 and to plain CPU otherwise.
func DetectDevice() Device {
	if nvidiaSMIAvailable() {
		return DeviceCUDA
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return DeviceApple
	}
	return DeviceCPU
}

func nvidiaSMIAvailable() bool {
	cmd := exec.Command("nvidia-smi", "--query-gpu=count", "--format=csv,noheader")
	return cmd.Run() == nil
}

// cudaFreeBytes shells out to nvidia-smi for free device memory. Returns
// ok=false when the CLI is unavailable or its output doesn't parse,
// letting the caller fall back to host memory.
func cudaFreeBytes() (int64, bool) {
	cmd := exec.Command("nvidia-smi", "--query-gpu=memory.free", "--format=csv,noheader,nounits")
	out, err := cmd.Output()
	if err != nil {
		return 0, false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return 0, false
	}
	mib, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return 0, false
	}
	return mib * 1024 * 1024, true
}

// bf16Supported reports whether the detected CUDA device advertises
// bfloat16 support. Compute-capability introspection needs the CUDA
// driver API; nvidia-smi's compute_cap field is the closest portable
// proxy (Ampere and later, compute capability >= 8.0, support bf16).
func bf16Supported() bool {
	cmd := exec.Command("nvidia-smi", "--query-gpu=compute_cap", "--format=csv,noheader")
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return false
	}
	cap, err := strconv.ParseFloat(strings.TrimSpace(lines[0]), 64)
	if err != nil {
		return false
	}
	return cap >= 8.0
}

// SelectPrecision implements §4.3's deterministic per-device precision
// rule. localDev additionally permits an int8 attempt on CPU, with the
// caller responsible for falling back to fp32 on a load error.
func SelectPrecision(device Device, localDev bool) Precision {
	switch device {
	case DeviceCUDA:
		if bf16Supported() {
			return PrecisionBF16
		}
		return PrecisionFP32
	case DeviceApple:
		return PrecisionFP32
	default:
		if localDev {
			return PrecisionInt8
		}
		return PrecisionFP32
	}
}
