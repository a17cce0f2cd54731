package deploy

import (
	"context"
	"fmt"
)

// IssueCertificate obtains or renews the certificate for the configured
// domain through certbot. The proxy config already references the standard
// letsencrypt paths; this stage only causes the referenced files to exist.
// Runs non-interactively: the contact email is a required config field, so
// the pipeline never blocks on operator input.
func IssueCertificate(ctx context.Context, run Runner, cfg Config) error {
	err := run.Run(ctx, "certbot", "--nginx",
		"-d", cfg.Domain,
		"--non-interactive",
		"--agree-tos",
		"-m", cfg.Email)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}
	return nil
}
