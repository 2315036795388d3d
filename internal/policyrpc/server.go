package policyrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/agentbridge/internal/game"
	"github.com/cartridge/agentbridge/internal/wire"
)

// Selection is a decoded SelectAction request.
type Selection struct {
	DelegateID    string
	Game          wire.Descriptor
	Context       wire.ContextView
	MaxSeconds    float64
	MaxIterations int
	MaxDepth      int
}

// Service is the typed server API implemented by a policy runtime. Errors should carry
// gRPC status codes; plain errors surface as codes.Unknown.
type Service interface {
	Import(ctx context.Context, module string) ([]string, error)
	Create(ctx context.Context, module, factory string) (string, error)
	Init(ctx context.Context, delegateID string, g wire.Descriptor, playerID int) error
	SelectAction(ctx context.Context, sel Selection) (game.Move, error)
	Release(ctx context.Context, delegateID string) error
}

// Register exposes svc on s.
func Register(s grpc.ServiceRegistrar, svc Service) {
	RegisterPolicyRuntimeServer(s, &server{svc: svc})
}

type server struct {
	UnimplementedPolicyRuntimeServer
	svc Service
}

func invalid(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

func stringArg(in *structpb.Struct, key string) (string, error) {
	s, err := wire.AsString(in.GetFields()[key], key)
	if err != nil {
		return "", invalid(err)
	}
	return s, nil
}

func intArg(in *structpb.Struct, key string) (int, error) {
	n, err := wire.AsInt(in.GetFields()[key], key)
	if err != nil {
		return 0, invalid(err)
	}
	return n, nil
}

func (s *server) Import(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	module, err := stringArg(in, "module")
	if err != nil {
		return nil, err
	}
	factories, err := s.svc.Import(ctx, module)
	if err != nil {
		return nil, err
	}
	values := make([]*structpb.Value, len(factories))
	for i, f := range factories {
		values[i] = structpb.NewStringValue(f)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"module":    structpb.NewStringValue(module),
		"factories": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}, nil
}

func (s *server) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	module, err := stringArg(in, "module")
	if err != nil {
		return nil, err
	}
	factory, err := stringArg(in, "factory")
	if err != nil {
		return nil, err
	}
	id, err := s.svc.Create(ctx, module, factory)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"delegate_id": structpb.NewStringValue(id),
	}}, nil
}

func (s *server) Init(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringArg(in, "delegate_id")
	if err != nil {
		return nil, err
	}
	g, err := wire.DecodeGame(in.GetFields()["game"])
	if err != nil {
		return nil, invalid(err)
	}
	playerID, err := intArg(in, "player_id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.Init(ctx, id, g, playerID); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *server) SelectAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var (
		sel Selection
		err error
	)
	if sel.DelegateID, err = stringArg(in, "delegate_id"); err != nil {
		return nil, err
	}
	if sel.Game, err = wire.DecodeGame(in.GetFields()["game"]); err != nil {
		return nil, invalid(err)
	}
	if sel.Context, err = wire.DecodeContext(in.GetFields()["context"]); err != nil {
		return nil, invalid(err)
	}
	if sel.MaxSeconds, err = wire.AsNumber(in.GetFields()["max_seconds"], "max_seconds"); err != nil {
		return nil, invalid(err)
	}
	if sel.MaxIterations, err = intArg(in, "max_iterations"); err != nil {
		return nil, err
	}
	if sel.MaxDepth, err = intArg(in, "max_depth"); err != nil {
		return nil, err
	}
	move, err := s.svc.SelectAction(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"move": wire.EncodeMove(move),
	}}, nil
}

func (s *server) Release(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringArg(in, "delegate_id")
	if err != nil {
		return nil, err
	}
	if err := s.svc.Release(ctx, id); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}
