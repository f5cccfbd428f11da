package usecase

import "time"

// PhaseObserver receives pipeline telemetry. The metrics package provides
// the Prometheus implementation; tests and tools use NopObserver.
type PhaseObserver interface {
	ObservePhase(phase, outcome string, d time.Duration)
	FanoutOutcome(provider, outcome string)
}

type NopObserver struct{}

func (NopObserver) ObservePhase(string, string, time.Duration) {}
func (NopObserver) FanoutOutcome(string, string)               {}
