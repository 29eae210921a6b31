package idempotency

import (
	"context"
	"fmt"
	"time"
)

func ExampleManager_Begin() {
	ctx := context.Background()
	guard, _ := NewManager(newMemoryStore(), 72*time.Hour)

	handle := func(deliveryID string) {
		status, _ := guard.Begin(ctx, "payments-webhook", deliveryID)
		if status != Claimed {
			fmt.Println(deliveryID, "skipped:", status)
			return
		}
		fmt.Println(deliveryID, "handled")
		_ = guard.Complete(ctx, "payments-webhook", deliveryID)
	}

	handle("dlv_5f2c")
	handle("dlv_5f2c")
	// Output:
	// dlv_5f2c handled
	// dlv_5f2c skipped: done
}
