// Package idgen mints receipt identifiers.
package idgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"

	"github.com/smallbiznis/receiptpoints/internal/clock"
	"github.com/smallbiznis/receiptpoints/internal/config"
)

// Generator returns a fresh identifier on every call. Implementations are
// safe for concurrent use.
type Generator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string {
	return uuid.NewString()
}

// NewUUID returns a generator of random version 4 UUIDs.
func NewUUID() Generator {
	return uuidGenerator{}
}

type ulidGenerator struct {
	clock   clock.Clock
	mu      sync.Mutex
	entropy io.Reader
}

// NewULID returns a generator of ULIDs stamped by clk. Identifiers minted
// within the same millisecond stay strictly increasing.
func NewULID(clk clock.Clock) Generator {
	return &ulidGenerator{
		clock:   clk,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *ulidGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String()
}

// New picks the generator named by the configured id format.
func New(cfg config.Config, clk clock.Clock) (Generator, error) {
	switch cfg.ReceiptIDFormat {
	case config.ReceiptIDFormatUUID, "":
		return NewUUID(), nil
	case config.ReceiptIDFormatULID:
		return NewULID(clk), nil
	default:
		return nil, fmt.Errorf("unsupported receipt id format %q", cfg.ReceiptIDFormat)
	}
}

var Module = fx.Module("idgen", fx.Provide(New))
