// Package webhook receives Resend delivery-event callbacks: verify the Svix
// signature, append an audit event, correlate it to a job, and grow the
// suppression list from bounces and complaints.
package webhook

import (
	"net/http"

	svix "github.com/svix/svix-webhooks/go"

	"lokumail/internal/config"
)

// Verifier checks the authenticity of a raw webhook payload against its
// transport headers.
type Verifier interface {
	Verify(payload []byte, headers http.Header) error
}

// SvixVerifier verifies Resend webhook signatures, which follow the Svix
// scheme (svix-id, svix-timestamp, svix-signature headers).
type SvixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier creates a verifier from the shared webhook secret.
func NewSvixVerifier(secret config.SecretString) (*SvixVerifier, error) {
	wh, err := svix.NewWebhook(secret.Unmask())
	if err != nil {
		return nil, err
	}
	return &SvixVerifier{wh: wh}, nil
}

// Verify implements Verifier.
func (v *SvixVerifier) Verify(payload []byte, headers http.Header) error {
	return v.wh.Verify(payload, headers)
}

var _ Verifier = (*SvixVerifier)(nil)
