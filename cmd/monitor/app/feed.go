package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rf-watch/gnss-sentry/internal/telemetry"
)

// maxEpochLineBytes bounds a single NDJSON line. A full multi-band
// constellation epoch is a few kilobytes.
const maxEpochLineBytes = 1 << 20

// EpochFeed reads newline-delimited JSON epochs from the receiver's
// monitor output stream. Malformed lines are counted and skipped; the
// stream itself is the receiver's, and one bad flush must not kill a
// monitoring session.
type EpochFeed struct {
	scanner *bufio.Scanner
	logger  *slog.Logger

	parseErrors uint64
}

// NewEpochFeed creates a feed over r.
func NewEpochFeed(r io.Reader, logger *slog.Logger) *EpochFeed {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxEpochLineBytes)
	return &EpochFeed{scanner: scanner, logger: logger}
}

// ParseErrors reports how many lines were dropped as malformed.
func (f *EpochFeed) ParseErrors() uint64 { return f.parseErrors }

// Next returns the next epoch, io.EOF once the stream ends.
func (f *EpochFeed) Next(ctx context.Context) (*telemetry.Epoch, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !f.scanner.Scan() {
			if err := f.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading epoch stream: %w", err)
			}
			return nil, io.EOF
		}

		line := f.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var epoch telemetry.Epoch
		if err := json.Unmarshal(line, &epoch); err != nil {
			f.parseErrors++
			f.logger.Warn("dropping malformed epoch", "error", err)
			continue
		}
		if epoch.Timestamp.IsZero() {
			epoch.Timestamp = time.Now().UTC()
		}
		return &epoch, nil
	}
}

var _ telemetry.Provider = (*EpochFeed)(nil)
