// Package utility provides the non-container operations: server time,
// weather lookups, and AI-generated facts.
package utility

import (
	"context"
	"fmt"
	"time"
)

// TimeProvider reports the current server time.
type TimeProvider struct {
	// Now is swappable for tests. Defaults to time.Now.
	Now func() time.Time
}

// NewTimeProvider creates a provider backed by the system clock.
func NewTimeProvider() *TimeProvider {
	return &TimeProvider{Now: time.Now}
}

// CurrentTime returns the current server time in a human-readable form.
func (p *TimeProvider) CurrentTime(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := p.Now()
	return fmt.Sprintf("Current server time: %s", now.Format("Monday, January 2, 2006 at 3:04:05 PM MST")), nil
}
