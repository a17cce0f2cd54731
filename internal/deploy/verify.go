package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 15
)

// Verifier polls the supervisor-reported state of every dependent service
// after the restarts. It collects all results before judging the run so a
// failure names every inactive service in one pass.
type Verifier struct {
	run Runner
	log *zap.Logger

	pollInterval time.Duration
	maxPolls     uint64
}

func NewVerifier(run Runner, log *zap.Logger) *Verifier {
	return &Verifier{
		run:          run,
		log:          log,
		pollInterval: defaultPollInterval,
		maxPolls:     defaultMaxPolls,
	}
}

func (v *Verifier) Verify(ctx context.Context, services []ServiceDescriptor) ([]VerificationResult, error) {
	results := make([]VerificationResult, 0, len(services))
	var inactive []string
	for _, svc := range services {
		active := v.waitActive(ctx, svc)
		results = append(results, VerificationResult{Name: svc.Name, Active: active})
		if !active {
			inactive = append(inactive, svc.Name)
		}
	}
	if len(inactive) > 0 {
		return results, fmt.Errorf("%w: inactive services: %s", ErrVerify, strings.Join(inactive, ", "))
	}
	return results, nil
}

// waitActive polls one service until it reports active or the retry budget
// is spent. Services need a few seconds after a restart before systemd
// reports them active, hence the bounded backoff instead of a single probe.
func (v *Verifier) waitActive(ctx context.Context, svc ServiceDescriptor) bool {
	check := func() error {
		out, err := v.run.Output(ctx, "systemctl", "is-active", svc.Unit)
		if err != nil || out != "active" {
			return fmt.Errorf("%s reports %q", svc.Unit, out)
		}
		if svc.Ping != nil {
			return svc.Ping(ctx)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(v.pollInterval), v.maxPolls), ctx)
	if err := backoff.Retry(check, policy); err != nil {
		v.log.Warn("service not active", zap.String("service", svc.Name), zap.Error(err))
		return false
	}
	return true
}

// BaseServices lists the externally managed services this deployment
// depends on, in verification order.
func BaseServices(cfg Config) []ServiceDescriptor {
	return []ServiceDescriptor{
		{Name: "cache", Unit: "redis-server.service"},
		{Name: "proxy", Unit: "nginx.service"},
		{Name: cfg.AppName, Unit: cfg.UnitName()},
	}
}

// CachePing returns a deep liveness probe for the cache: a PING
// authenticated with the freshly generated credential. A successful ping
// proves the secret written into redis.conf is the same value handed to the
// supervised process.
func CachePing(port int, secret Secret) func(context.Context) error {
	return func(ctx context.Context) error {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("127.0.0.1:%d", port),
			Password: secret.Value(),
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("cache ping: %w", err)
		}
		return nil
	}
}
