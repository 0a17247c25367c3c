package transport

import (
	"context"
	"errors"

	"github.com/arcadeflow/agentserver/pkg/handler"
	"github.com/arcadeflow/agentserver/pkg/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InvokeRequest is the AgentOrchestrator service's unary/streaming request
// message. Agent picks which mounted Handler serves the call, since one
// gRPC server fronts every agent a deployment configures (spec §6's
// per-agent mount generalizes the same way over gRPC as it does over HTTP).
type InvokeRequest struct {
	Agent      string            `json:"agent"`
	AuthHeader string            `json:"auth_header"`
	Message    model.UserMessage `json:"message"`
}

// ResumeRequest is the AgentOrchestrator service's resume/resume_stream
// request message.
type ResumeRequest struct {
	Agent      string               `json:"agent"`
	AuthHeader string               `json:"auth_header"`
	RequestID  string               `json:"request_id"`
	Decision   model.ResumeDecision `json:"decision"`
	Reason     string               `json:"reason,omitempty"`
}

// InvokeReply wraps whichever of the four terminal response shapes a call
// produced; exactly one field is set.
type InvokeReply struct {
	AgentResponse         *model.AgentResponse         `json:"agent_response,omitempty"`
	HitlResponse          *model.HitlResponse          `json:"hitl_response,omitempty"`
	AuthChallengeResponse *model.AuthChallengeResponse `json:"auth_challenge_response,omitempty"`
	RejectedToolResponse  *model.RejectedToolResponse  `json:"rejected_tool_response,omitempty"`
}

// StreamChunk is one message on an InvokeStream/ResumeStream response
// stream: either a partial text fragment or the terminal reply.
type StreamChunk struct {
	Partial *model.PartialResponse `json:"partial,omitempty"`
	Final   *InvokeReply           `json:"final,omitempty"`
}

func wrapReply(v any) *InvokeReply {
	reply := &InvokeReply{}
	switch r := v.(type) {
	case *model.AgentResponse:
		reply.AgentResponse = r
	case *model.HitlResponse:
		reply.HitlResponse = r
	case *model.AuthChallengeResponse:
		reply.AuthChallengeResponse = r
	case *model.RejectedToolResponse:
		reply.RejectedToolResponse = r
	}
	return reply
}

// grpcError maps a handler.Error's Kind to the nearest gRPC status code,
// mirroring statusForKind's HTTP mapping (spec §7's "never derived ad hoc").
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var herr *handler.Error
	if errors.As(err, &herr) {
		return status.Error(grpcCode(herr.Kind), herr.Message)
	}
	return status.Error(codes.Internal, err.Error())
}

func grpcCode(k handler.Kind) codes.Code {
	switch k {
	case handler.KindAuthentication:
		return codes.Unauthenticated
	case handler.KindAuthorization:
		return codes.PermissionDenied
	case handler.KindNotFound:
		return codes.NotFound
	case handler.KindConflict:
		return codes.FailedPrecondition
	case handler.KindUpstream:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// AgentOrchestrator_InvokeStreamServer is the server-streaming counterpart
// of AgentOrchestratorServer's InvokeStream, matching the shape
// protoc-gen-go-grpc would emit for a .proto-declared service.
type AgentOrchestrator_InvokeStreamServer interface {
	Send(*StreamChunk) error
	grpc.ServerStream
}

// AgentOrchestrator_ResumeStreamServer is ResumeStream's counterpart.
type AgentOrchestrator_ResumeStreamServer interface {
	Send(*StreamChunk) error
	grpc.ServerStream
}

// AgentOrchestratorServer is the interface orchestrator implements, used
// only as AgentOrchestrator_ServiceDesc's HandlerType for registration.
type AgentOrchestratorServer interface {
	Invoke(context.Context, *InvokeRequest) (*InvokeReply, error)
	Resume(context.Context, *ResumeRequest) (*InvokeReply, error)
	InvokeStream(*InvokeRequest, AgentOrchestrator_InvokeStreamServer) error
	ResumeStream(*ResumeRequest, AgentOrchestrator_ResumeStreamServer) error
}

// orchestrator implements AgentOrchestratorServer over a set of mounted
// per-agent Handlers, keyed by agent name.
type orchestrator struct {
	handlers map[string]*handler.Handler
}

func newOrchestrator(mounts []Mount) *orchestrator {
	handlers := make(map[string]*handler.Handler, len(mounts))
	for _, m := range mounts {
		handlers[m.Name] = m.Handler
	}
	return &orchestrator{handlers: handlers}
}

func (o *orchestrator) handlerFor(agent string) (*handler.Handler, error) {
	h, ok := o.handlers[agent]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown agent %q", agent)
	}
	return h, nil
}

func (o *orchestrator) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeReply, error) {
	h, err := o.handlerFor(req.Agent)
	if err != nil {
		return nil, err
	}
	resp, err := h.Invoke(ctx, req.AuthHeader, req.Message)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapReply(resp), nil
}

func (o *orchestrator) Resume(ctx context.Context, req *ResumeRequest) (*InvokeReply, error) {
	h, err := o.handlerFor(req.Agent)
	if err != nil {
		return nil, err
	}
	resp, err := h.Resume(ctx, req.AuthHeader, req.RequestID, req.Decision, req.Reason)
	if err != nil {
		return nil, grpcError(err)
	}
	return wrapReply(resp), nil
}

func (o *orchestrator) InvokeStream(req *InvokeRequest, stream AgentOrchestrator_InvokeStreamServer) error {
	h, err := o.handlerFor(req.Agent)
	if err != nil {
		return err
	}
	resp, err := h.InvokeStream(stream.Context(), req.AuthHeader, req.Message, func(text string) bool {
		return stream.Send(&StreamChunk{Partial: &model.PartialResponse{
			SessionID:     req.Message.SessionID,
			TaskID:        req.Message.TaskID,
			OutputPartial: text,
		}}) == nil
	})
	if err != nil {
		return grpcError(err)
	}
	if resp == nil {
		return nil
	}
	return stream.Send(&StreamChunk{Final: wrapReply(resp)})
}

func (o *orchestrator) ResumeStream(req *ResumeRequest, stream AgentOrchestrator_ResumeStreamServer) error {
	h, err := o.handlerFor(req.Agent)
	if err != nil {
		return err
	}
	resp, err := h.ResumeStream(stream.Context(), req.AuthHeader, req.RequestID, req.Decision, req.Reason, func(text string) bool {
		return stream.Send(&StreamChunk{Partial: &model.PartialResponse{RequestID: req.RequestID, OutputPartial: text}}) == nil
	})
	if err != nil {
		return grpcError(err)
	}
	if resp == nil {
		return nil
	}
	return stream.Send(&StreamChunk{Final: wrapReply(resp)})
}

func _AgentOrchestrator_Invoke_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InvokeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentOrchestratorServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/agentserver.AgentOrchestrator/Invoke"}
	next := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentOrchestratorServer).Invoke(ctx, req.(*InvokeRequest))
	}
	return interceptor(ctx, in, info, next)
}

func _AgentOrchestrator_Resume_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResumeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AgentOrchestratorServer).Resume(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/agentserver.AgentOrchestrator/Resume"}
	next := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AgentOrchestratorServer).Resume(ctx, req.(*ResumeRequest))
	}
	return interceptor(ctx, in, info, next)
}

type agentOrchestratorInvokeStreamServer struct{ grpc.ServerStream }

func (x *agentOrchestratorInvokeStreamServer) Send(m *StreamChunk) error {
	return x.ServerStream.SendMsg(m)
}

func _AgentOrchestrator_InvokeStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(InvokeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AgentOrchestratorServer).InvokeStream(m, &agentOrchestratorInvokeStreamServer{stream})
}

type agentOrchestratorResumeStreamServer struct{ grpc.ServerStream }

func (x *agentOrchestratorResumeStreamServer) Send(m *StreamChunk) error {
	return x.ServerStream.SendMsg(m)
}

func _AgentOrchestrator_ResumeStream_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ResumeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AgentOrchestratorServer).ResumeStream(m, &agentOrchestratorResumeStreamServer{stream})
}

// AgentOrchestrator_ServiceDesc is the hand-written grpc.ServiceDesc that
// stands in for what protoc-gen-go-grpc would generate from a .proto file.
var AgentOrchestrator_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "agentserver.AgentOrchestrator",
	HandlerType: (*AgentOrchestratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Invoke", Handler: _AgentOrchestrator_Invoke_Handler},
		{MethodName: "Resume", Handler: _AgentOrchestrator_Resume_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "InvokeStream", Handler: _AgentOrchestrator_InvokeStream_Handler, ServerStreams: true},
		{StreamName: "ResumeStream", Handler: _AgentOrchestrator_ResumeStream_Handler, ServerStreams: true},
	},
	Metadata: "agentserver/orchestrator.proto",
}
