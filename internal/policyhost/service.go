package policyhost

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/policyrpc"
	"github.com/cartridge/agentbridge/internal/wire"
)

// DelegateInfo describes a live delegate.
type DelegateInfo struct {
	ID        string    `json:"id"`
	Module    string    `json:"module"`
	Factory   string    `json:"factory"`
	Game      string    `json:"game,omitempty"`
	PlayerID  int       `json:"player_id,omitempty"`
	Decisions int       `json:"decisions"`
	CreatedAt time.Time `json:"created_at"`
}

type delegate struct {
	mu          sync.Mutex
	info        DelegateInfo
	policy      Policy
	initialised bool
}

// Service implements policyrpc.Service on top of a Registry.
type Service struct {
	registry *Registry
	logger   zerolog.Logger

	mu        sync.RWMutex
	imported  map[string]bool
	delegates map[string]*delegate
}

var _ policyrpc.Service = (*Service)(nil)

// NewService creates a Service serving the modules of registry.
func NewService(registry *Registry, logger zerolog.Logger) *Service {
	return &Service{
		registry:  registry,
		logger:    logger,
		imported:  make(map[string]bool),
		delegates: make(map[string]*delegate),
	}
}

// Import marks a module as loaded. Importing twice is harmless.
func (s *Service) Import(_ context.Context, module string) ([]string, error) {
	factories, ok := s.registry.Factories(module)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no module named %q", module)
	}
	s.mu.Lock()
	first := !s.imported[module]
	s.imported[module] = true
	s.mu.Unlock()

	if first {
		s.logger.Info().Str("module", module).Strs("factories", factories).Msg("Module imported")
	}
	return factories, nil
}

// Create runs a factory of an imported module.
func (s *Service) Create(_ context.Context, module, factory string) (string, error) {
	s.mu.RLock()
	imported := s.imported[module]
	s.mu.RUnlock()
	if !imported {
		return "", status.Errorf(codes.FailedPrecondition, "module %q is not imported", module)
	}
	build, ok := s.registry.factory(module, factory)
	if !ok {
		return "", status.Errorf(codes.NotFound, "module %q has no attribute %q", module, factory)
	}
	policy, err := build()
	if err != nil {
		return "", status.Errorf(codes.Internal, "%s.%s: %v", module, factory, err)
	}

	d := &delegate{
		info: DelegateInfo{
			ID:        uuid.New().String(),
			Module:    module,
			Factory:   factory,
			CreatedAt: time.Now().UTC(),
		},
		policy: policy,
	}
	s.mu.Lock()
	s.delegates[d.info.ID] = d
	s.mu.Unlock()

	s.logger.Debug().Str("delegate_id", d.info.ID).Str("factory", factory).Msg("Delegate created")
	return d.info.ID, nil
}

// Init forwards per-game initialisation to the delegate's policy.
func (s *Service) Init(_ context.Context, delegateID string, g wire.Descriptor, playerID int) error {
	d, err := s.lookup(delegateID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.policy.InitAI(g, playerID); err != nil {
		return status.Errorf(codes.FailedPrecondition, "init %s: %v", delegateID, err)
	}
	d.initialised = true
	d.info.Game = g.Name
	d.info.PlayerID = playerID

	s.logger.Debug().
		Str("delegate_id", delegateID).
		Str("game", g.Name).
		Int("player_id", playerID).
		Msg("Delegate initialised")
	return nil
}

// SelectAction asks the delegate's policy for a move.
func (s *Service) SelectAction(ctx context.Context, sel policyrpc.Selection) (game.Move, error) {
	d, err := s.lookup(sel.DelegateID)
	if err != nil {
		return game.Move{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialised {
		return game.Move{}, status.Errorf(codes.FailedPrecondition, "delegate %s is not initialised", sel.DelegateID)
	}
	move, err := d.policy.SelectAction(ctx, sel)
	if err != nil {
		return game.Move{}, status.Errorf(codes.Internal, "select action: %v", err)
	}
	d.info.Decisions++
	return move, nil
}

// Release drops a delegate. Unknown ids are ignored.
func (s *Service) Release(_ context.Context, delegateID string) error {
	s.mu.Lock()
	_, ok := s.delegates[delegateID]
	delete(s.delegates, delegateID)
	s.mu.Unlock()
	if ok {
		s.logger.Debug().Str("delegate_id", delegateID).Msg("Delegate released")
	}
	return nil
}

// Delegates lists live delegates ordered by creation time.
func (s *Service) Delegates() []DelegateInfo {
	s.mu.RLock()
	out := make([]DelegateInfo, 0, len(s.delegates))
	for _, d := range s.delegates {
		d.mu.Lock()
		out = append(out, d.info)
		d.mu.Unlock()
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Imported lists imported modules.
func (s *Service) Imported() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.imported))
	for module := range s.imported {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

func (s *Service) lookup(id string) (*delegate, error) {
	s.mu.RLock()
	d, ok := s.delegates[id]
	s.mu.RUnlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no delegate %q", id)
	}
	return d, nil
}
