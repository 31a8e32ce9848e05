package systems

import (
	"strconv"
	"strings"
)

// Partition is a coarse ordering hint. Within a group, systems that are not
// ordered by Before/After run in ascending partition order.
type Partition = int64

const (
	// PartitionEarly runs before unpartitioned systems. Use for input
	// handling and anything other systems read in the same tick.
	PartitionEarly Partition = -1

	// PartitionDefault is the partition of systems that declare none.
	PartitionDefault Partition = 0

	// PartitionLate runs after unpartitioned systems. Use for cleanup,
	// synchronization and statistics.
	PartitionLate Partition = 1
)

// partitionName returns the preset name of p, or its number.
func partitionName(p Partition) string {
	switch p {
	case PartitionEarly:
		return "early"
	case PartitionDefault:
		return "default"
	case PartitionLate:
		return "late"
	default:
		return strconv.FormatInt(p, 10)
	}
}

// parsePartition accepts a preset name or an integer.
func parsePartition(s string) (Partition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "early":
		return PartitionEarly, nil
	case "default", "":
		return PartitionDefault, nil
	case "late":
		return PartitionLate, nil
	}
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
