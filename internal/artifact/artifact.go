// Package artifact stores utterance audio captures. Retention is
// optional; when disabled the rest of the pipeline never sees a path.
package artifact

import "context"

// Saver persists one named audio artifact and returns the location a
// transcript entry should reference. Implementations must be safe for
// concurrent use.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}
