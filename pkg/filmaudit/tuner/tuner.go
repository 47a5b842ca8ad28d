// Package tuner sizes the hashing worker pool from the host's CPU and memory.
package tuner

// SystemResources contains detected system resources.
type SystemResources struct {
	// CPUCores is the number of logical CPU cores available.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is the free RAM in bytes. It may be an estimate.
	AvailableRAM int64
}

// defaultTotalRAM is assumed when detection is unsupported or fails.
const defaultTotalRAM = 8 * 1024 * 1024 * 1024
