package policy

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// GetActionMethod is the unary RPC the policy server exposes. Request and
// reply are google.protobuf.Struct, so no generated stubs are required.
const GetActionMethod = "/track1.policy.v1.PolicyService/GetAction"

// #region client-struct

// Invoker is the subset of *grpc.ClientConn the client uses.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client calls a remote policy server over gRPC.
type Client struct {
	conn *grpc.ClientConn
	inv  Invoker
}

var _ Source = (*Client)(nil)

// #endregion client-struct

// #region constructor

// Dial connects to the policy server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, inv: conn}, nil
}

// NewClientWithInvoker creates a Client over an injected invoker.
// Used for testing without a real gRPC connection.
func NewClientWithInvoker(inv Invoker) *Client {
	return &Client{inv: inv}
}

// Close shuts down the connection, if any.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region get-action

// GetAction sends obs and returns the reply fields as the action.
// An empty reply means the server has no action for this tick.
func (c *Client) GetAction(ctx context.Context, obs Observation) (map[string]any, error) {
	req, err := structpb.NewStruct(EncodeObservation(obs))
	if err != nil {
		return nil, fmt.Errorf("encode observation: %w", err)
	}
	reply := &structpb.Struct{}
	if err := c.inv.Invoke(ctx, GetActionMethod, req, reply); err != nil {
		return nil, fmt.Errorf("get action rpc: %w", err)
	}
	if len(reply.GetFields()) == 0 {
		return nil, nil
	}
	return reply.AsMap(), nil
}

// EncodeObservation renders obs with only the value types structpb accepts.
func EncodeObservation(obs Observation) map[string]any {
	ids := make([]string, 0, len(obs.Objects))
	for id := range obs.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	objects := make([]any, 0, len(ids))
	for _, id := range ids {
		o := obs.Objects[id]
		objects = append(objects, map[string]any{
			"id":           o.ID,
			"cls":          string(o.Class),
			"confidence":   o.Confidence,
			"visible":      o.Visible,
			"in_container": o.InContainer,
			"position":     floats(o.Position[:]),
		})
	}
	return map[string]any{
		"tick":           obs.Tick,
		"language":       obs.Instruction,
		"step":           obs.Step.Label(),
		"held_object_id": obs.HeldObjectID,
		"objects":        objects,
		"robot_state": map[string]any{
			"joint_positions":  floats(obs.Robot.JointPositions[:]),
			"joint_velocities": floats(obs.Robot.JointVelocities[:]),
			"gripper_state":    obs.Robot.GripperState,
			"battery_level":    obs.Robot.BatteryLevel,
			"temperature":      obs.Robot.Temperature,
		},
	}
}

func floats(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// #endregion get-action
