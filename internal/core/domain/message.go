package domain

import (
	"encoding/json"
	"fmt"
)

// Message discriminators. Every frame on the device link carries an "op"
// field; frames with an unknown op are dropped by the receiver.
const (
	OpRegister        = "register"
	OpInventoryUpdate = "inventory_update"
	OpCheckConfig     = "check_config"
	OpConfigUpdate    = "config_update"
	OpAck             = "ack"
)

// Register is the endpoint's greeting, sent once per connection.
type Register struct {
	Op       string `json:"op"`
	Identity string `json:"identity"`
	MAC      string `json:"mac"`
}

// InventoryUpdate reports one slot's new count along with device telemetry.
type InventoryUpdate struct {
	Op        string `json:"op"`
	Label     string `json:"label"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Battery   int    `json:"batt"`
	Timestamp string `json:"ts"`
}

// Ack answers an InventoryUpdate or CheckConfig. CorrectedLabel is set when
// the counterpart resolved the update against a relabeled slot.
type Ack struct {
	Op             string `json:"op"`
	Ack            bool   `json:"ack"`
	CorrectedLabel string `json:"corrected_label,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CheckConfig asks the counterpart to push a config update if its
// fingerprint changed since the last push. Unchanged config yields no push.
type CheckConfig struct {
	Op string `json:"op"`
}

// SlotConfig is one slot as carried inside a config push.
type SlotConfig struct {
	Label        string `json:"label"`
	Name         string `json:"name"`
	Count        int    `json:"count"`
	MinThreshold int    `json:"min"`
}

// ConfigUpdate replaces the endpoint's whole inventory. Application is
// wholesale, never a diff, which makes repeated pushes idempotent.
type ConfigUpdate struct {
	Op   string       `json:"op"`
	Data []SlotConfig `json:"data"`
}

func NewRegister(identity, mac string) Register {
	return Register{Op: OpRegister, Identity: identity, MAC: mac}
}

func NewAck(ok bool) Ack {
	return Ack{Op: OpAck, Ack: ok}
}

func NewCheckConfig() CheckConfig {
	return CheckConfig{Op: OpCheckConfig}
}

func NewConfigUpdate(data []SlotConfig) ConfigUpdate {
	return ConfigUpdate{Op: OpConfigUpdate, Data: data}
}

// DecodeMessage parses one framed payload into its concrete message type.
func DecodeMessage(raw []byte) (any, error) {
	var probe struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	var (
		msg any
		err error
	)
	switch probe.Op {
	case OpRegister:
		var m Register
		err = json.Unmarshal(raw, &m)
		msg = m
	case OpInventoryUpdate:
		var m InventoryUpdate
		err = json.Unmarshal(raw, &m)
		msg = m
	case OpCheckConfig:
		var m CheckConfig
		err = json.Unmarshal(raw, &m)
		msg = m
	case OpConfigUpdate:
		var m ConfigUpdate
		err = json.Unmarshal(raw, &m)
		msg = m
	case OpAck:
		var m Ack
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: op %q", ErrUnknownOp, probe.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return msg, nil
}
