package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type exampleStore struct {
	fakeStore
	claimed map[string]bool
}

func (s *exampleStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.claimed[key] {
		return false, nil
	}
	s.claimed[key] = true
	return true, nil
}

func ExampleGuard_Claim() {
	ctx := context.Background()
	guard, _ := NewGuard(&exampleStore{claimed: map[string]bool{}}, 24*time.Hour)
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		claimed, _ := guard.Claim(ctx, "outbox-publisher", eventID)
		if claimed {
			fmt.Println("publish")
		} else {
			fmt.Println("skip, already sent")
		}
	}
	// Output:
	// publish
	// skip, already sent
}
