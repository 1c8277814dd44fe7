package config

import (
	"fmt"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
)

// BuildMessage resolves the inscription message and run size from the
// configured sources. A plan file wins over INSCRIPTION_JSON, which wins
// over the discrete fields; the returned message is validated.
func (c *Config) BuildMessage() (model.Inscription, int, error) {
	ins := c.Inscription

	if ins.PlanFile != "" {
		plan, err := LoadPlan(ins.PlanFile)
		if err != nil {
			return nil, 0, err
		}
		msg, err := plan.Message.Inscription()
		if err != nil {
			return nil, 0, err
		}
		if err := msg.Validate(); err != nil {
			return nil, 0, err
		}
		return msg, plan.Count, nil
	}

	if ins.JSON != "" {
		msg, err := model.DecodeInscription(ins.JSON)
		if err != nil {
			return nil, 0, err
		}
		if err := msg.Validate(); err != nil {
			return nil, 0, err
		}
		return msg, ins.Count, nil
	}

	msg, err := ins.discreteMessage()
	if err != nil {
		return nil, 0, err
	}
	if err := msg.Validate(); err != nil {
		return nil, 0, err
	}
	return msg, ins.Count, nil
}

func (ins InscriptionConfig) discreteMessage() (model.Inscription, error) {
	switch ins.Op {
	case model.OpMint:
		mint := model.Mint{
			Protocol: model.ParseProtocol(ins.Protocol),
			Tick:     ins.Tick,
			Amt:      ins.Amt,
		}
		if ins.ID != "" {
			id := ins.ID
			mint.ID = &id
		}
		return mint, nil
	case model.OpDeploy:
		return model.Deploy{
			Protocol: model.ParseProtocol(ins.Protocol),
			Tick:     ins.Tick,
			Max:      ins.Max,
			Lim:      ins.Lim,
		}, nil
	case model.OpTransfer:
		// The recipient list has no flat-env form.
		return nil, fmt.Errorf("transfer runs need INSCRIPTION_JSON or a plan file")
	default:
		return nil, fmt.Errorf("INSCRIPTION_OP must be mint, deploy, or transfer, got %q", ins.Op)
	}
}
