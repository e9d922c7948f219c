package drives

// Locations read by the linux registry.
const (
	// DefaultMountsPath lists the mounts of the current process
	DefaultMountsPath = "/proc/self/mounts"
	// DefaultSysBlockPath holds one directory per block device
	DefaultSysBlockPath = "/sys/block"
)
