package ratelimit

import (
	"context"
	"fmt"
)

const (
	resetBatchSize  = 100
	resetMaxDeletes = 1000
)

// resetKeys unlinks every key stored under the given base key: the bare key
// itself (the suffix-less token-bucket shape) and everything under the
// colon-delimited pattern "<key>:*" (the bucket-suffixed window shapes). The
// pattern keeps the literal ":" separator so an identifier can never glob
// into a sibling whose name merely extends it. UNLINK frees the values off
// the server's foreground path.
//
// The scan script caps itself at resetMaxDeletes and hands back a cursor;
// a single call is enough here because an identifier holds at most two live
// keys.
func resetKeys(ctx context.Context, c Client, key string) error {
	_, err := runScript(ctx, c, resetScript, []string{},
		key, "0", resetBatchSize, resetMaxDeletes)
	if err != nil {
		return fmt.Errorf("reset %q: %w", key, err)
	}
	return nil
}
