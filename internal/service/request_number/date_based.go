package request_number

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DateBasedConfig holds configuration for the date-based generator.
type DateBasedConfig struct {
	Prefix    string
	MinDigits int
}

// DateBasedGenerator generates request numbers of the form
// PREFIX + YYYYMMDD + padded daily counter (e.g. SR-20260829-0007).
// The counter resets implicitly each day because the counter UID embeds
// the date.
type DateBasedGenerator struct {
	db     *sql.DB
	config DateBasedConfig
	now    func() time.Time
}

// NewDateBasedGenerator creates a new date-based generator.
func NewDateBasedGenerator(db *sql.DB, config DateBasedConfig) *DateBasedGenerator {
	if config.Prefix == "" {
		config.Prefix = "SR-"
	}
	if config.MinDigits == 0 {
		config.MinDigits = 4
	}
	return &DateBasedGenerator{db: db, config: config, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (g *DateBasedGenerator) WithClock(now func() time.Time) *DateBasedGenerator {
	g.now = now
	return g
}

// Generate creates a new request number.
func (g *DateBasedGenerator) Generate(ctx context.Context) (string, error) {
	date := g.now().UTC().Format("20060102")

	counter, err := getNextCounter(ctx, g.db, "date_"+date)
	if err != nil {
		return "", fmt.Errorf("failed to get next counter: %w", err)
	}

	format := fmt.Sprintf("%%s%%s-%%0%dd", g.config.MinDigits)
	return fmt.Sprintf(format, g.config.Prefix, date, counter), nil
}

// Reset resets today's counter to zero. Exposed for admin tooling.
func (g *DateBasedGenerator) Reset(ctx context.Context) error {
	date := g.now().UTC().Format("20060102")
	return resetCounter(ctx, g.db, "date_"+date, 0)
}
