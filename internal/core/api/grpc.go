// internal/core/api/grpc.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/solatis/rulekeeper/internal/facts"
	"github.com/solatis/rulekeeper/internal/rules"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * gRPC binding for rulekeeper.v1.RuleService.
 *
 * Requests and responses are google.protobuf.Struct so the service needs no
 * generated stubs; the descriptor below is what protoc-gen-go-grpc would
 * emit for:
 *
 *   service RuleService {
 *     rpc Evaluate(google.protobuf.Struct) returns (google.protobuf.Struct);
 *     rpc ListOperators(google.protobuf.Struct) returns (google.protobuf.Struct);
 *   }
 *
 * Evaluate request:
 *   {mode: "first"|"all", stop_on_first_trigger: bool,
 *    facts: {variables: [...], data: {...}}, rules: [...]}
 * Evaluate response:
 *   {evaluation_id: string, outcomes: [{rule_id, rule_name, results: [...]}]}
 */

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rulekeeper.v1.RuleService"

const (
	evaluateMethod      = "/" + ServiceName + "/Evaluate"
	listOperatorsMethod = "/" + ServiceName + "/ListOperators"
)

// RuleServiceServer is the server API for RuleService.
type RuleServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOperators(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ RuleServiceServer = (*Service)(nil)

// RuleServiceDesc describes RuleService for grpc.Server.RegisterService.
var RuleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: evaluateHandler},
		{MethodName: "ListOperators", Handler: listOperatorsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulekeeper/v1/rule_service.proto",
}

// RegisterRuleServiceServer registers srv on s.
func RegisterRuleServiceServer(s grpc.ServiceRegistrar, srv RuleServiceServer) {
	s.RegisterService(&RuleServiceDesc, srv)
}

func evaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuleServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RuleServiceServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listOperatorsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuleServiceServer).ListOperators(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listOperatorsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RuleServiceServer).ListOperators(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RuleServiceClient calls RuleService over a client connection.
type RuleServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRuleServiceClient wraps cc.
func NewRuleServiceClient(cc grpc.ClientConnInterface) *RuleServiceClient {
	return &RuleServiceClient{cc: cc}
}

// Evaluate invokes RuleService.Evaluate.
func (c *RuleServiceClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, evaluateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOperators invokes RuleService.ListOperators.
func (c *RuleServiceClient) ListOperators(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listOperatorsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate implements RuleServiceServer.
func (s *Service) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := s.decodeRequest(in)
	if err != nil {
		return nil, toStatus(err)
	}
	resp, err := s.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(resp.ToMap())
	if err != nil {
		return nil, toStatus(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

// ListOperators implements RuleServiceServer. The response maps each kind
// name to its operators: {kind: [{name, label, input_type}]}.
func (s *Service) ListOperators(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	byKind := rules.OperatorsByKind()
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	out := make(map[string]any, len(kinds))
	for _, k := range kinds {
		ops := make([]any, 0, len(byKind[k]))
		for _, op := range byKind[k] {
			ops = append(ops, map[string]any{
				"name":       op.Name,
				"label":      op.Label,
				"input_type": string(op.Input),
			})
		}
		out[k] = ops
	}
	res, err := structpb.NewStruct(out)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

func (s *Service) decodeRequest(in *structpb.Struct) (*EvaluateRequest, error) {
	fields := in.AsMap()
	req := &EvaluateRequest{}

	if v, ok := fields["mode"]; ok && v != nil {
		mode, ok := v.(string)
		if !ok {
			return nil, invalidArgument("mode must be a string")
		}
		req.Mode = mode
	}
	if v, ok := fields["stop_on_first_trigger"]; ok && v != nil {
		stop, ok := v.(bool)
		if !ok {
			return nil, invalidArgument("stop_on_first_trigger must be a boolean")
		}
		req.StopOnFirstTrigger = stop
	}

	rawFacts, ok := fields["facts"].(map[string]any)
	if !ok {
		return nil, invalidArgument("facts must be an object")
	}
	doc, err := facts.FromMap(rawFacts)
	if err != nil {
		return nil, invalidArgument("%v", err)
	}
	req.Facts = doc

	if v, ok := fields["rules"]; ok && v != nil {
		compiled, err := s.CompileRules(v)
		if err != nil {
			return nil, err
		}
		req.Rules = compiled
	}
	return req, nil
}

// toStruct converts m into a Struct via its JSON encoding so values such
// as decimals take their JSON form.
func toStruct(m map[string]any) (*structpb.Struct, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return out, nil
}
