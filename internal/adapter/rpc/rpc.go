// Package rpc defines the record-store gRPC contract shared by the server
// handler and the bridge client. Messages travel as JSON via a registered
// codec; the service descriptor is written out by hand, which keeps protoc
// out of the build while the whole system speaks one serialization.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	ServiceName = "shelfsync.v1.RecordStore"

	// CodecName is the content-subtype both sides must request.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// JSONCodec satisfies grpc/encoding.Codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc marshal: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc unmarshal: %w", err)
	}
	return nil
}

func (JSONCodec) Name() string { return CodecName }

type RegisterDeviceRequest struct {
	MAC string `json:"mac"`
}

type Slot struct {
	Label        string `json:"label"`
	Name         string `json:"name"`
	Count        int    `json:"count"`
	MinThreshold int    `json:"min_threshold"`
}

type InventoryResponse struct {
	Slots []Slot `json:"slots"`
}

type GetInventoryRequest struct {
	MAC string `json:"mac"`
}

type UpdateSlotRequest struct {
	MAC       string `json:"mac"`
	Label     string `json:"label"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Battery   int    `json:"battery"`
	Timestamp string `json:"timestamp"`
}

type UpdateSlotResponse struct {
	Ack            bool   `json:"ack"`
	CorrectedLabel string `json:"corrected_label,omitempty"`
	Error          string `json:"error,omitempty"`
}

type RepositionRequest struct {
	MAC         string `json:"mac"`
	Row         int    `json:"row"`
	BottomLevel int    `json:"bottom_level"`
	LeftBox     int    `json:"left_box"`
}

type RepositionResponse struct {
	Success     bool   `json:"success"`
	SwappedWith string `json:"swapped_with,omitempty"`
	BlockedBy   string `json:"blocked_by,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RecordStoreServer is the server-side contract.
type RecordStoreServer interface {
	RegisterDevice(ctx context.Context, req *RegisterDeviceRequest) (*InventoryResponse, error)
	UpdateSlot(ctx context.Context, req *UpdateSlotRequest) (*UpdateSlotResponse, error)
	GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryResponse, error)
	RepositionDevice(ctx context.Context, req *RepositionRequest) (*RepositionResponse, error)
}

// RegisterRecordStoreServer attaches srv to a gRPC server.
func RegisterRecordStoreServer(s *grpc.Server, srv RecordStoreServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RecordStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterDevice", Handler: registerDeviceHandler},
		{MethodName: "UpdateSlot", Handler: updateSlotHandler},
		{MethodName: "GetInventory", Handler: getInventoryHandler},
		{MethodName: "RepositionDevice", Handler: repositionDeviceHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shelfsync/v1/recordstore",
}

func registerDeviceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterDeviceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).RegisterDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterDevice"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordStoreServer).RegisterDevice(ctx, req.(*RegisterDeviceRequest))
	})
}

func updateSlotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateSlotRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).UpdateSlot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/UpdateSlot"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordStoreServer).UpdateSlot(ctx, req.(*UpdateSlotRequest))
	})
}

func getInventoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInventoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).GetInventory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetInventory"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordStoreServer).GetInventory(ctx, req.(*GetInventoryRequest))
	})
}

func repositionDeviceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RepositionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecordStoreServer).RepositionDevice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RepositionDevice"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(RecordStoreServer).RepositionDevice(ctx, req.(*RepositionRequest))
	})
}

// Methods used by the client adapter.
const (
	MethodRegisterDevice   = "/" + ServiceName + "/RegisterDevice"
	MethodUpdateSlot       = "/" + ServiceName + "/UpdateSlot"
	MethodGetInventory     = "/" + ServiceName + "/GetInventory"
	MethodRepositionDevice = "/" + ServiceName + "/RepositionDevice"
)
