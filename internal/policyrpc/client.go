package policyrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cartridge/agentbridge/internal/wire"
)

// SelectRequest carries one move query. Game and Context are produced by the wire
// package.
type SelectRequest struct {
	DelegateID    string
	Game          *structpb.Value
	Context       *structpb.Value
	MaxSeconds    float64
	MaxIterations int
	MaxDepth      int
}

// Client is the typed view of PolicyRuntimeClient used by the bridge.
type Client struct {
	raw PolicyRuntimeClient
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{raw: NewPolicyRuntimeClient(cc)}
}

// Import loads module in the policy runtime and returns the factories it exposes.
func (c *Client) Import(ctx context.Context, module string) ([]string, error) {
	out, err := c.raw.Import(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"module": structpb.NewStringValue(module),
	}})
	if err != nil {
		return nil, err
	}
	list := out.GetFields()["factories"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: import response has no factories", wire.ErrTypeMismatch)
	}
	factories := make([]string, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		name, err := wire.AsString(v, fmt.Sprintf("factories[%d]", i))
		if err != nil {
			return nil, err
		}
		factories = append(factories, name)
	}
	return factories, nil
}

// Create invokes a named factory of an imported module and returns the new delegate id.
func (c *Client) Create(ctx context.Context, module, factory string) (string, error) {
	out, err := c.raw.Create(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"module":  structpb.NewStringValue(module),
		"factory": structpb.NewStringValue(factory),
	}})
	if err != nil {
		return "", err
	}
	return wire.AsString(out.GetFields()["delegate_id"], "delegate_id")
}

// Init runs the delegate's per-game initialisation.
func (c *Client) Init(ctx context.Context, delegateID string, game *structpb.Value, playerID int) error {
	_, err := c.raw.Init(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"delegate_id": structpb.NewStringValue(delegateID),
		"game":        game,
		"player_id":   wire.Int(playerID),
	}})
	return err
}

// SelectAction asks the delegate for a move and returns the raw move value.
func (c *Client) SelectAction(ctx context.Context, req SelectRequest) (*structpb.Value, error) {
	out, err := c.raw.SelectAction(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"delegate_id":    structpb.NewStringValue(req.DelegateID),
		"game":           req.Game,
		"context":        req.Context,
		"max_seconds":    wire.Number(req.MaxSeconds),
		"max_iterations": wire.Count(req.MaxIterations),
		"max_depth":      wire.Count(req.MaxDepth),
	}})
	if err != nil {
		return nil, err
	}
	return out.GetFields()["move"], nil
}

// Release discards a delegate.
func (c *Client) Release(ctx context.Context, delegateID string) error {
	_, err := c.raw.Release(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"delegate_id": structpb.NewStringValue(delegateID),
	}})
	return err
}
