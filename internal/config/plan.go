package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
)

// Plan is an optional YAML run description, an alternative to spelling the
// message out in env vars. It carries the message and the run size; the
// endpoint, wallet, and store still come from the environment.
type Plan struct {
	Count   int         `yaml:"count"`
	Message PlanMessage `yaml:"message"`
}

// PlanMessage mirrors the inscription wire fields. Only the fields the
// chosen op uses need to be set.
type PlanMessage struct {
	Op       string             `yaml:"op"`
	Protocol string             `yaml:"p"`
	Tick     string             `yaml:"tick"`
	Amt      uint64             `yaml:"amt"`
	ID       string             `yaml:"id"`
	Max      uint64             `yaml:"max"`
	Lim      uint64             `yaml:"lim"`
	To       []PlanTransferItem `yaml:"to"`
}

type PlanTransferItem struct {
	Recv string `yaml:"recv"`
	Amt  int64  `yaml:"amt"`
}

// LoadPlan reads and parses a YAML plan file. A missing count means one
// inscription.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse plan file %s: %w", path, err)
	}
	if plan.Count == 0 {
		plan.Count = 1
	}
	if plan.Count < 1 {
		return nil, fmt.Errorf("plan count must be at least 1, got %d", plan.Count)
	}
	return &plan, nil
}

// Inscription converts the plan message into the typed form.
func (m PlanMessage) Inscription() (model.Inscription, error) {
	switch m.Op {
	case model.OpMint:
		mint := model.Mint{
			Protocol: model.ParseProtocol(m.Protocol),
			Tick:     m.Tick,
			Amt:      m.Amt,
		}
		if m.ID != "" {
			id := m.ID
			mint.ID = &id
		}
		return mint, nil
	case model.OpDeploy:
		return model.Deploy{
			Protocol: model.ParseProtocol(m.Protocol),
			Tick:     m.Tick,
			Max:      m.Max,
			Lim:      m.Lim,
		}, nil
	case model.OpTransfer:
		items := make([]model.TransferItem, 0, len(m.To))
		for _, item := range m.To {
			if !common.IsHexAddress(item.Recv) {
				return nil, fmt.Errorf("plan transfer recipient %q is not an address", item.Recv)
			}
			items = append(items, model.TransferItem{
				Recv: common.HexToAddress(item.Recv),
				Amt:  item.Amt,
			})
		}
		return model.Transfer{
			Protocol: model.ParseProtocol(m.Protocol),
			Tick:     m.Tick,
			To:       items,
		}, nil
	default:
		return nil, fmt.Errorf("plan message op %q is not supported", m.Op)
	}
}
