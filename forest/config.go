package forest

// DefaultMaxLabelLength is the label limit used when none is configured.
const DefaultMaxLabelLength = 255

// Config holds the label policy.
type Config struct {
	// MaxLabelLength is the maximum label length in characters (runes),
	// measured after trimming surrounding whitespace.
	// Default: 255
	MaxLabelLength int
}

// DefaultConfig returns the default label policy.
func DefaultConfig() Config {
	return Config{MaxLabelLength: DefaultMaxLabelLength}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.MaxLabelLength < 1 {
		c.MaxLabelLength = DefaultMaxLabelLength
	}
}
