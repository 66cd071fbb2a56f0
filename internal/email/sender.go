// Package email delivers transactional mail for the dev identity provider
// (verification links, password resets).
package email

import "context"

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
