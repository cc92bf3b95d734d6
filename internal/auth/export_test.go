package auth

import "time"

// SetRetryDelay shortens the re-authentication backoff in tests.
func (a *Authenticator) SetRetryDelay(d time.Duration) {
	a.retryDelay = d
}

// SetMaxLoginAttempts overrides the number of re-authentication attempts in tests.
func (a *Authenticator) SetMaxLoginAttempts(n int) {
	a.maxLoginAttempts = n
}
