package sim

import (
	"github.com/go-playground/validator/v10"

	"github.com/wippyai/pgbridge/errors"
)

const (
	// DefaultChunkSize is the default size of the chunks arenas carve blocks from.
	DefaultChunkSize = 8 << 10

	// MaxAllocSize is the largest single allocation the engine accepts.
	MaxAllocSize = 0x3fffffff
)

// Config holds configuration for engine creation.
type Config struct {
	// ChunkSize is the size of each chunk an arena bump-allocates from.
	// 0 means DefaultChunkSize. Larger requests get a dedicated chunk.
	ChunkSize int `toml:"chunk_size" validate:"omitempty,min=64,max=1073741823"`

	// MemoryLimit caps the bytes live across all arenas except ErrorContext.
	// 0 means unlimited. Requests past the limit raise out of memory.
	MemoryLimit uint64 `toml:"memory_limit" validate:"omitempty,min=1024"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid engine config")
	}
	return nil
}

func (c *Config) chunkSize() int {
	if c == nil || c.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return c.ChunkSize
}
