package tuner

// Worker pool limits.
const (
	// MaxHashWorkers caps the hashing pool. Archive volumes are usually
	// spinning disks or network shares, where more readers only add seeks.
	MaxHashWorkers = 16

	// minHashWorkers is the floor of the pool.
	minHashWorkers = 1

	// workerHeadroom is the memory budgeted per worker on top of its read
	// buffer: parsed manifest indexes and inspection output.
	workerHeadroom = 32 * 1024 * 1024

	// reservedRAM is left untouched for the rest of the system.
	reservedRAM = 256 * 1024 * 1024
)

// HashWorkers returns clamp(CPUCores, 1, MaxHashWorkers), reduced until the
// available RAM minus a reserve holds one chunk buffer plus headroom per
// worker.
func HashWorkers(resources SystemResources, chunkSize int) int {
	workers := max(resources.CPUCores, minHashWorkers)
	workers = min(workers, MaxHashWorkers)

	perWorker := int64(chunkSize) + workerHeadroom
	budget := resources.AvailableRAM - reservedRAM
	if budget <= 0 {
		return minHashWorkers
	}
	if fit := int(budget / perWorker); fit < workers {
		workers = max(fit, minHashWorkers)
	}
	return workers
}

// HashWorkersWithOverride returns override when it is positive, capped at
// MaxHashWorkers, and HashWorkers otherwise.
func HashWorkersWithOverride(resources SystemResources, chunkSize, override int) int {
	if override > 0 {
		return min(override, MaxHashWorkers)
	}
	return HashWorkers(resources, chunkSize)
}
