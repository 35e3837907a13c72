// Package recordstore gives the bridge its view of the central record
// store over gRPC.
package recordstore

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/rl1809/shelfsync/internal/adapter/rpc"
	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/port"
)

type GRPCClient struct {
	conn *grpc.ClientConn
}

func NewGRPCClient(conn *grpc.ClientConn) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) Register(ctx context.Context, mac string) ([]domain.SlotConfig, error) {
	var resp rpc.InventoryResponse
	err := c.conn.Invoke(ctx, rpc.MethodRegisterDevice,
		&rpc.RegisterDeviceRequest{MAC: mac}, &resp, grpc.CallContentSubtype(rpc.CodecName))
	if err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return toSlotConfigs(resp.Slots), nil
}

func (c *GRPCClient) Update(ctx context.Context, mac string, upd domain.InventoryUpdate) (port.UpdateResult, error) {
	var resp rpc.UpdateSlotResponse
	err := c.conn.Invoke(ctx, rpc.MethodUpdateSlot, &rpc.UpdateSlotRequest{
		MAC:       mac,
		Label:     upd.Label,
		Name:      upd.Name,
		Count:     upd.Count,
		Battery:   upd.Battery,
		Timestamp: upd.Timestamp,
	}, &resp, grpc.CallContentSubtype(rpc.CodecName))
	if err != nil {
		return port.UpdateResult{}, fmt.Errorf("update slot: %w", err)
	}
	return port.UpdateResult{
		Ack:            resp.Ack,
		CorrectedLabel: resp.CorrectedLabel,
		Error:          resp.Error,
	}, nil
}

func (c *GRPCClient) Inventory(ctx context.Context, mac string) ([]domain.SlotConfig, error) {
	var resp rpc.InventoryResponse
	err := c.conn.Invoke(ctx, rpc.MethodGetInventory,
		&rpc.GetInventoryRequest{MAC: mac}, &resp, grpc.CallContentSubtype(rpc.CodecName))
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	return toSlotConfigs(resp.Slots), nil
}

func toSlotConfigs(slots []rpc.Slot) []domain.SlotConfig {
	out := make([]domain.SlotConfig, len(slots))
	for i, s := range slots {
		out[i] = domain.SlotConfig{
			Label:        s.Label,
			Name:         s.Name,
			Count:        s.Count,
			MinThreshold: s.MinThreshold,
		}
	}
	return out
}
