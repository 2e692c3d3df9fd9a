package service

import (
	"notification-service/pkg/circuitbreaker"
)

// BreakerEmailPublisher wraps an EmailPublisher with a circuit breaker so a
// down broker fails email requests fast instead of stalling every dispatch
// on publish timeouts.
type BreakerEmailPublisher struct {
	inner   EmailPublisher
	breaker *circuitbreaker.CircuitBreaker
}

func NewBreakerEmailPublisher(inner EmailPublisher) *BreakerEmailPublisher {
	return &BreakerEmailPublisher{
		inner:   inner,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
	}
}

func (b *BreakerEmailPublisher) Publish(routingKey string, payload any) error {
	return b.breaker.Execute(func() error {
		return b.inner.Publish(routingKey, payload)
	})
}
