package protov1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = protoPackage + ".FXGBWorker"

// Full method names, as seen by interceptors.
const (
	StartJobFullMethod = "/" + ServiceName + "/StartJob"
	InitFullMethod     = "/" + ServiceName + "/Init"
	TrainFullMethod    = "/" + ServiceName + "/Train"
)

// FXGBWorkerClient is the aggregator side of the worker control plane.
type FXGBWorkerClient interface {
	StartJob(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*WorkerResponse, error)
	Init(ctx context.Context, in *InitRequest, opts ...grpc.CallOption) (*WorkerResponse, error)
	Train(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*WorkerResponse, error)
}

type fxgbWorkerClient struct {
	cc grpc.ClientConnInterface
}

// NewFXGBWorkerClient wraps a client connection.
func NewFXGBWorkerClient(cc grpc.ClientConnInterface) FXGBWorkerClient {
	return &fxgbWorkerClient{cc: cc}
}

func (c *fxgbWorkerClient) invoke(ctx context.Context, method string, in *dynamicpb.Message, opts []grpc.CallOption) (*WorkerResponse, error) {
	out := dynamicpb.NewMessage(workerResponseDesc)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return workerResponseFromDynamic(out), nil
}

func (c *fxgbWorkerClient) StartJob(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*WorkerResponse, error) {
	return c.invoke(ctx, StartJobFullMethod, in.toDynamic(), opts)
}

func (c *fxgbWorkerClient) Init(ctx context.Context, in *InitRequest, opts ...grpc.CallOption) (*WorkerResponse, error) {
	return c.invoke(ctx, InitFullMethod, in.toDynamic(), opts)
}

func (c *fxgbWorkerClient) Train(ctx context.Context, _ *Empty, opts ...grpc.CallOption) (*WorkerResponse, error) {
	return c.invoke(ctx, TrainFullMethod, dynamicpb.NewMessage(emptyDesc), opts)
}

// FXGBWorkerServer is implemented by the worker.
type FXGBWorkerServer interface {
	StartJob(context.Context, *JobRequest) (*WorkerResponse, error)
	Init(context.Context, *InitRequest) (*WorkerResponse, error)
	Train(context.Context, *Empty) (*WorkerResponse, error)
}

// UnimplementedFXGBWorkerServer can be embedded for forward compatibility.
type UnimplementedFXGBWorkerServer struct{}

func (UnimplementedFXGBWorkerServer) StartJob(context.Context, *JobRequest) (*WorkerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StartJob not implemented")
}

func (UnimplementedFXGBWorkerServer) Init(context.Context, *InitRequest) (*WorkerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Init not implemented")
}

func (UnimplementedFXGBWorkerServer) Train(context.Context, *Empty) (*WorkerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Train not implemented")
}

// RegisterFXGBWorkerServer registers srv on s.
func RegisterFXGBWorkerServer(s grpc.ServiceRegistrar, srv FXGBWorkerServer) {
	s.RegisterService(&FXGBWorkerServiceDesc, srv)
}

// FXGBWorkerServiceDesc describes the FXGBWorker service for grpc.Server.
var FXGBWorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FXGBWorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartJob", Handler: startJobHandler},
		{MethodName: "Init", Handler: initHandler},
		{MethodName: "Train", Handler: trainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

type typedCall func(srv FXGBWorkerServer, ctx context.Context, req any) (*WorkerResponse, error)

// unary decodes the wire message into desc, converts it with decode and runs
// call through the interceptor chain. Responses are re-encoded as dynamic
// messages so the default proto codec can marshal them.
func unary(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	method string,
	desc protoreflect.MessageDescriptor,
	decode func(protoreflect.Message) any,
	call typedCall,
) (any, error) {
	m := dynamicpb.NewMessage(desc)
	if err := dec(m); err != nil {
		return nil, err
	}
	in := decode(m)

	handler := func(ctx context.Context, req any) (any, error) {
		resp, err := call(srv.(FXGBWorkerServer), ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.toDynamic(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
	return interceptor(ctx, in, info, handler)
}

func startJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, StartJobFullMethod, jobRequestDesc,
		func(m protoreflect.Message) any { return jobRequestFromDynamic(m) },
		func(s FXGBWorkerServer, ctx context.Context, req any) (*WorkerResponse, error) {
			return s.StartJob(ctx, req.(*JobRequest))
		})
}

func initHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, InitFullMethod, initRequestDesc,
		func(m protoreflect.Message) any { return initRequestFromDynamic(m) },
		func(s FXGBWorkerServer, ctx context.Context, req any) (*WorkerResponse, error) {
			return s.Init(ctx, req.(*InitRequest))
		})
}

func trainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, TrainFullMethod, emptyDesc,
		func(protoreflect.Message) any { return &Empty{} },
		func(s FXGBWorkerServer, ctx context.Context, req any) (*WorkerResponse, error) {
			return s.Train(ctx, req.(*Empty))
		})
}
