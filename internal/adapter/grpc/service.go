package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "ledger.v1.LedgerService"

// LedgerServiceServer is the server API for ledger.v1.LedgerService.
// Requests and responses are google.protobuf.Struct messages; decimal values travel as strings.
type LedgerServiceServer interface {
	PostTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReverseTransaction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAccountBalance(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	MatchSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ExecuteSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DetectWashSales(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplyWashSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplySplit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplySpinoff(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplyMerger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ApplySymbolChange(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetQSBSSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordPurchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordSale(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv LedgerServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerServiceDesc describes ledger.v1.LedgerService for grpc.Server.RegisterService
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PostTransaction", LedgerServiceServer.PostTransaction),
		unary("ReverseTransaction", LedgerServiceServer.ReverseTransaction),
		unary("GetAccountBalance", LedgerServiceServer.GetAccountBalance),
		unary("MatchSale", LedgerServiceServer.MatchSale),
		unary("ExecuteSale", LedgerServiceServer.ExecuteSale),
		unary("DetectWashSales", LedgerServiceServer.DetectWashSales),
		unary("ApplyWashSale", LedgerServiceServer.ApplyWashSale),
		unary("ApplySplit", LedgerServiceServer.ApplySplit),
		unary("ApplySpinoff", LedgerServiceServer.ApplySpinoff),
		unary("ApplyMerger", LedgerServiceServer.ApplyMerger),
		unary("ApplySymbolChange", LedgerServiceServer.ApplySymbolChange),
		unary("GetQSBSSummary", LedgerServiceServer.GetQSBSSummary),
		unary("RecordPurchase", LedgerServiceServer.RecordPurchase),
		unary("RecordSale", LedgerServiceServer.RecordSale),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer registers srv on s
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerServiceClient calls ledger.v1.LedgerService methods by name
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient creates a client over cc
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

// Call invokes method with fields as the request message
func (c *LedgerServiceClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
