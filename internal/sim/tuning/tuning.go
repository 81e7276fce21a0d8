package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tmgbattle.ai/internal/sim/battle"
	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	CycleRateHz         int `yaml:"cycle_rate_hz"`
	SnapshotEveryCycles int `yaml:"snapshot_every_cycles"`
	InboxSize           int `yaml:"inbox_size"`

	Battle BattleTuning `yaml:"battle"`
	Armory ArmoryTuning `yaml:"armory"`
}

type BattleTuning struct {
	MaxPower          uint16 `yaml:"max_power"`
	MinPower          uint16 `yaml:"min_power"`
	MaxEnergy         uint16 `yaml:"max_energy"`
	MinEnergy         uint16 `yaml:"min_energy"`
	RoundStepLimit    uint8  `yaml:"round_step_limit"`
	UpdateDelayCycles uint32 `yaml:"update_delay_cycles"`
	AdHocGas          uint64 `yaml:"ad_hoc_gas"`
}

type ArmoryTuning struct {
	Weapons []Attribute `yaml:"weapons"`
	Shields []Attribute `yaml:"shields"`
}

// Attribute is one armory row: a weapon multiplier or a flat shield reduction.
type Attribute struct {
	ID    uint32 `yaml:"id"`
	Name  string `yaml:"name"`
	Value uint16 `yaml:"value"`
}

func Defaults() Tuning {
	cfg := battle.DefaultConfig()
	return Tuning{
		ProtocolVersion:     "1.0",
		CycleRateHz:         5,
		SnapshotEveryCycles: 3000,
		InboxSize:           1024,
		Battle: BattleTuning{
			MaxPower:          cfg.MaxPower,
			MinPower:          cfg.MinPower,
			MaxEnergy:         cfg.MaxEnergy,
			MinEnergy:         cfg.MinEnergy,
			RoundStepLimit:    cfg.RoundStepLimit,
			UpdateDelayCycles: cfg.UpdateDelay,
			AdHocGas:          cfg.AdHocFunding,
		},
		Armory: ArmoryTuning{
			Weapons: []Attribute{
				{ID: uint32(combat.SwordID), Name: "sword", Value: combat.SwordPower},
				{ID: uint32(combat.WoodenSwordID), Name: "wooden_sword", Value: combat.WoodenSwordPower},
				{ID: uint32(combat.ShotgunID), Name: "shotgun", Value: combat.ShotgunPower},
				{ID: uint32(combat.RPGID), Name: "rpg", Value: combat.RPGPower},
			},
			Shields: []Attribute{
				{ID: uint32(combat.ShieldID), Name: "shield", Value: combat.ShieldProtection},
			},
		},
	}
}

// Load reads a tuning file on top of Defaults; absent keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.CycleRateHz <= 0 {
		return errors.New("cycle_rate_hz must be > 0")
	}
	if t.SnapshotEveryCycles < 0 || t.InboxSize < 0 {
		return errors.New("snapshot_every_cycles and inbox_size must be >= 0")
	}
	seen := map[uint32]string{}
	for _, rows := range [][]Attribute{t.Armory.Weapons, t.Armory.Shields} {
		for _, a := range rows {
			if prev, ok := seen[a.ID]; ok {
				return fmt.Errorf("armory id %d used by %q and %q", a.ID, prev, a.Name)
			}
			seen[a.ID] = a.Name
		}
	}
	return t.BattleConfig().Validate()
}

func (t Tuning) BattleConfig() battle.Config {
	arm := combat.Armory{
		Weapons: make(map[model.AttributeID]uint16, len(t.Armory.Weapons)),
		Shields: make(map[model.AttributeID]uint16, len(t.Armory.Shields)),
	}
	for _, w := range t.Armory.Weapons {
		arm.Weapons[model.AttributeID(w.ID)] = w.Value
	}
	for _, s := range t.Armory.Shields {
		arm.Shields[model.AttributeID(s.ID)] = s.Value
	}
	return battle.Config{
		MaxPower:       t.Battle.MaxPower,
		MinPower:       t.Battle.MinPower,
		MaxEnergy:      t.Battle.MaxEnergy,
		MinEnergy:      t.Battle.MinEnergy,
		RoundStepLimit: t.Battle.RoundStepLimit,
		UpdateDelay:    t.Battle.UpdateDelayCycles,
		AdHocFunding:   t.Battle.AdHocGas,
		Armory:         arm,
	}
}
