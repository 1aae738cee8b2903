package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"storefront-service/internal/cart"
	"storefront-service/internal/domain"
)

const CartQueryServiceName = "storefront.v1.CartQuery"

// CartQueryServer is the read-only cart API exposed to other services.
type CartQueryServer interface {
	GetCart(ctx context.Context, userID *wrapperspb.StringValue) (*structpb.Struct, error)
}

func _CartQuery_GetCart_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CartQueryServer).GetCart(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + CartQueryServiceName + "/GetCart",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CartQueryServer).GetCart(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// CartQueryServiceDesc describes storefront.v1.CartQuery. Requests and
// responses use well-known protobuf types, so no generated code is needed.
var CartQueryServiceDesc = grpc.ServiceDesc{
	ServiceName: CartQueryServiceName,
	HandlerType: (*CartQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: _CartQuery_GetCart_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/cart_query.proto",
}

func RegisterCartQueryServer(s grpc.ServiceRegistrar, srv CartQueryServer) {
	s.RegisterService(&CartQueryServiceDesc, srv)
}

// GRPCHandler implements CartQueryServer.
type GRPCHandler struct {
	carts  *cart.Service
	logger *zap.Logger
}

func NewGRPCHandler(carts *cart.Service, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{carts: carts, logger: logger.Named("grpc")}
}

// GetCart returns the cart bound to the given user id.
func (h *GRPCHandler) GetCart(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	userID := strings.TrimSpace(req.GetValue())
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}
	c, err := h.carts.ForUser(ctx, userID)
	if err != nil {
		if cart.IsNotFound(err) {
			return nil, status.Errorf(codes.NotFound, "no cart for user %q", userID)
		}
		h.logger.Error("GetCart failed", zap.String("user_id", userID), zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to load cart")
	}
	snapshot, err := cartToStruct(c)
	if err != nil {
		h.logger.Error("GetCart encode failed", zap.Error(err))
		return nil, status.Error(codes.Internal, "failed to encode cart")
	}
	return snapshot, nil
}

// cartToStruct converts the cart through its JSON form, so the struct
// mirrors the HTTP API field names.
func cartToStruct(c *domain.Cart) (*structpb.Struct, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// UnaryLoggingInterceptor logs every unary call with its outcome.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)))
		return resp, err
	}
}
