package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/oshokin/perimeter-alarm/internal/arming"
	"github.com/oshokin/perimeter-alarm/internal/config"
	"github.com/oshokin/perimeter-alarm/internal/dispatch"
	"github.com/oshokin/perimeter-alarm/internal/logger"
)

// service adds configuration handling to the arming machine.
// It backs both the gRPC API and the MQTT config topic.
type service struct {
	*arming.Machine

	// configPath is where applied topologies are persisted.
	configPath string
	// persist enables writing applied topologies back to configPath.
	persist bool
	// applyMu keeps parse, swap and save of one document together.
	applyMu sync.Mutex
}

func newService(machine *arming.Machine, configPath string, persist bool) *service {
	return &service{
		Machine:    machine,
		configPath: configPath,
		persist:    persist,
	}
}

// ApplyConfig validates a topology document and swaps it in.
// The running topology is untouched when validation fails.
func (s *service) ApplyConfig(ctx context.Context, document []byte) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	topology, err := config.ParseTopology(document)
	if err != nil {
		logger.WarnKV(ctx, "Rejected configuration", "error", err)
		return err
	}

	if err = s.Apply(ctx, topology); err != nil {
		return fmt.Errorf("apply topology: %w", err)
	}

	if !s.persist {
		return nil
	}

	if err = config.SaveTopology(s.configPath, topology); err != nil {
		// The new topology is already live; only the file is stale.
		logger.ErrorKV(ctx, "Failed to persist configuration", "path", s.configPath, "error", err)

		return nil
	}

	logger.InfoKV(ctx, "Configuration persisted", "path", s.configPath)

	return nil
}

// relayOutput forwards relay commands to an output attached after startup.
type relayOutput struct {
	mu     sync.RWMutex
	target dispatch.Relay
}

func (r *relayOutput) set(target dispatch.Relay) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}

// SetRelay implements dispatch.Relay.
func (r *relayOutput) SetRelay(ctx context.Context, on bool) error {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()

	if target == nil {
		return dispatch.ErrNoRelay
	}

	return target.SetRelay(ctx, on)
}
