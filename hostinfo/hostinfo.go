// Package hostinfo reports the CPU a run executes on, for the start-of-run
// banner.
package hostinfo

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// Info describes the host CPU.
type Info struct {
	Brand         string
	Vendor        string
	PhysicalCores int
	LogicalCores  int
	NumCPU        int // as seen by the Go runtime
	GOOS          string
	GOARCH        string
	Features      []string // SIMD features relevant to the float64 kernels
}

var simdFeatures = []struct {
	name string
	id   cpuid.FeatureID
}{
	{"sse4.2", cpuid.SSE42},
	{"avx", cpuid.AVX},
	{"avx2", cpuid.AVX2},
	{"fma3", cpuid.FMA3},
	{"avx512f", cpuid.AVX512F},
	{"avx512dq", cpuid.AVX512DQ},
	{"asimd", cpuid.ASIMD},
}

// Detect reads the CPU description once from cpuid.
func Detect() Info {
	info := Info{
		Brand:         strings.TrimSpace(cpuid.CPU.BrandName),
		Vendor:        cpuid.CPU.VendorString,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		NumCPU:        runtime.NumCPU(),
		GOOS:          runtime.GOOS,
		GOARCH:        runtime.GOARCH,
	}
	if info.Brand == "" {
		info.Brand = "unknown"
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	return info
}

// HasAVX512 reports whether the AVX-512 foundation and doubleword/quadword
// extensions are both present.
func (i Info) HasAVX512() bool {
	return i.Has("avx512f") && i.Has("avx512dq")
}

// Has reports whether feature was detected.
func (i Info) Has(feature string) bool {
	for _, f := range i.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// String formats a single banner line.
func (i Info) String() string {
	features := "none"
	if len(i.Features) > 0 {
		features = strings.Join(i.Features, ",")
	}
	return fmt.Sprintf("cpu=%q vendor=%s cores=%d/%d gomaxprocs=%d os=%s/%s simd=%s",
		i.Brand, i.Vendor, i.PhysicalCores, i.LogicalCores, runtime.GOMAXPROCS(0), i.GOOS, i.GOARCH, features)
}
