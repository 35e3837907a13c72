package handler

import (
	"context"
	"errors"

	"github.com/rl1809/shelfsync/internal/adapter/rpc"
	"github.com/rl1809/shelfsync/internal/core/domain"
	"github.com/rl1809/shelfsync/internal/core/service"
)

type GRPCHandler struct {
	inventory *service.InventoryService
}

func NewGRPCHandler(inventory *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventory: inventory}
}

func (h *GRPCHandler) RegisterDevice(ctx context.Context, req *rpc.RegisterDeviceRequest) (*rpc.InventoryResponse, error) {
	slots, err := h.inventory.Register(ctx, req.MAC)
	if err != nil {
		return nil, err
	}
	return &rpc.InventoryResponse{Slots: toRPCSlots(slots)}, nil
}

func (h *GRPCHandler) UpdateSlot(ctx context.Context, req *rpc.UpdateSlotRequest) (*rpc.UpdateSlotResponse, error) {
	corrected, err := h.inventory.ApplyUpdate(ctx, req.MAC, domain.InventoryUpdate{
		Op:        domain.OpInventoryUpdate,
		Label:     req.Label,
		Name:      req.Name,
		Count:     req.Count,
		Battery:   req.Battery,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		// Validation failures are a rejected ack, not an RPC error.
		switch {
		case errors.Is(err, domain.ErrSlotNotFound):
			return &rpc.UpdateSlotResponse{Ack: false, Error: "Item not found"}, nil
		case errors.Is(err, domain.ErrInvalidCount),
			errors.Is(err, domain.ErrInvalidBattery):
			return &rpc.UpdateSlotResponse{Ack: false, Error: err.Error()}, nil
		}
		return nil, err
	}
	return &rpc.UpdateSlotResponse{Ack: true, CorrectedLabel: corrected}, nil
}

func (h *GRPCHandler) GetInventory(ctx context.Context, req *rpc.GetInventoryRequest) (*rpc.InventoryResponse, error) {
	slots, err := h.inventory.Inventory(ctx, req.MAC)
	if err != nil {
		return nil, err
	}
	return &rpc.InventoryResponse{Slots: toRPCSlots(slots)}, nil
}

func (h *GRPCHandler) RepositionDevice(ctx context.Context, req *rpc.RepositionRequest) (*rpc.RepositionResponse, error) {
	swapped, err := h.inventory.Reposition(ctx, req.MAC, req.Row, req.BottomLevel, req.LeftBox)
	if err != nil {
		var conflict *domain.ConflictError
		switch {
		case errors.As(err, &conflict):
			return &rpc.RepositionResponse{Success: false, BlockedBy: conflict.BlockingMAC}, nil
		case errors.Is(err, domain.ErrDeviceNotFound),
			errors.Is(err, domain.ErrInvalidPlacement):
			return &rpc.RepositionResponse{Success: false, Error: err.Error()}, nil
		}
		return nil, err
	}
	return &rpc.RepositionResponse{Success: true, SwappedWith: swapped}, nil
}

func toRPCSlots(slots []domain.SlotConfig) []rpc.Slot {
	out := make([]rpc.Slot, len(slots))
	for i, s := range slots {
		out[i] = rpc.Slot{
			Label:        s.Label,
			Name:         s.Name,
			Count:        s.Count,
			MinThreshold: s.MinThreshold,
		}
	}
	return out
}
