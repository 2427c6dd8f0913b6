package discovery

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"
)

// Registry is the optional, best-effort service-registration surface used
// for operability (health dashboards, ad-hoc discovery). The saga
// protocols never route traffic through it — the event bus is the only
// inter-participant transport.
type Registry interface {
	Register(ctx context.Context, instanceID, serviceName, hostPort string) error
	Deregister(ctx context.Context, instanceID, serviceName string) error
	Discover(ctx context.Context, serviceName string) ([]string, error)
	HealthCheck(instanceID, serviceName string) error
}

// GenerateInstanceID builds a unique instance ID, e.g. "billing-123456789",
// so multiple instances of the same service never collide in the registry.
func GenerateInstanceID(serviceName string) string {
	return fmt.Sprintf("%s-%d", serviceName, rand.New(rand.NewSource(time.Now().UnixNano())).Int())
}

// Registration owns a registered instance and its background TTL refresh.
type Registration struct {
	registry    Registry
	instanceID  string
	serviceName string
	stopChan    chan struct{}
}

// Register registers instanceID/serviceName at addr and starts a 1s
// health-check ticker. Returns nil, nil when registry is nil so callers
// can treat Consul as optional without branching at every call site.
func Register(ctx context.Context, registry Registry, instanceID, serviceName, addr string) (*Registration, error) {
	if registry == nil {
		return nil, nil
	}

	if err := registry.Register(ctx, instanceID, serviceName, addr); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", serviceName, err)
	}

	reg := &Registration{
		registry:    registry,
		instanceID:  instanceID,
		serviceName: serviceName,
		stopChan:    make(chan struct{}),
	}

	go reg.healthCheckLoop()

	return reg, nil
}

func (r *Registration) healthCheckLoop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.registry.HealthCheck(r.instanceID, r.serviceName); err != nil {
				log.Printf("health check failed for %s: %v", r.serviceName, err)
			}
		}
	}
}

// Deregister stops the health-check loop and deregisters the instance. A
// nil Registration (no registry configured) is a no-op.
func (r *Registration) Deregister(ctx context.Context) error {
	if r == nil {
		return nil
	}
	close(r.stopChan)
	return r.registry.Deregister(ctx, r.instanceID, r.serviceName)
}
