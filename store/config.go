package store

// MaxScanSegments bounds Config.ScanSegments.
const MaxScanSegments = 16

// Config holds configuration for the Store.
type Config struct {
	// NodesTable is the name of the node table.
	// Default: "grove_nodes"
	NodesTable string

	// CounterTable is the name of the table holding the id counter.
	// Default: "grove_counters"
	CounterTable string

	// ScanSegments is the number of parallel Scan segments used by FetchAll.
	// Default: 1 (single sequential scan)
	// Max: 16
	ScanSegments int

	// ConflictRetries is how many times Create retries a transaction that
	// DynamoDB cancelled because of a conflicting concurrent transaction.
	// Cancelled transactions write nothing, so the retry cannot duplicate a node.
	// Default: 3
	ConflictRetries int
}

// DefaultConfig returns sensible defaults for small forests.
func DefaultConfig() Config {
	return Config{
		NodesTable:      "grove_nodes",
		CounterTable:    "grove_counters",
		ScanSegments:    1,
		ConflictRetries: 3,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.NodesTable == "" {
		c.NodesTable = "grove_nodes"
	}
	if c.CounterTable == "" {
		c.CounterTable = "grove_counters"
	}
	if c.ScanSegments < 1 {
		c.ScanSegments = 1
	}
	if c.ScanSegments > MaxScanSegments {
		c.ScanSegments = MaxScanSegments
	}
	if c.ConflictRetries < 0 {
		c.ConflictRetries = 0
	}
}
