package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/store"
)

const storeProbeKey = "health:probe"

// StoreCheck checks the shared store. Stores with a network backend are
// pinged; others get a write/read round trip.
func StoreCheck(s store.Store) HealthCheck {
	return NewHealthCheckFunc("store", func(ctx context.Context) error {
		if p, ok := s.(store.Pinger); ok {
			return p.Ping(ctx)
		}

		want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
		if err := s.Set(ctx, storeProbeKey, want, time.Minute); err != nil {
			return fmt.Errorf("store write failed: %w", err)
		}
		got, err := s.Get(ctx, storeProbeKey)
		if err != nil {
			return fmt.Errorf("store read failed: %w", err)
		}
		if string(got) != string(want) {
			return errors.New("store returned a stale probe value")
		}
		return nil
	})
}
