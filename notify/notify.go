// Package notify delivers password reset tokens out-of-band. Implementations
// satisfy auth.ResetNotifier.
package notify

import "time"

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second
