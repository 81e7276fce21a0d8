package battle

import (
	"errors"
	"fmt"

	"tmgbattle.ai/internal/sim/combat"
)

// Config carries the rule constants of one battle.
type Config struct {
	MaxPower  uint16
	MinPower  uint16
	MaxEnergy uint16
	// MinEnergy may exceed MaxEnergy; every energy draw then falls back to MaxEnergy/2.
	MinEnergy uint16

	RoundStepLimit uint8
	// UpdateDelay is the number of cycles before the round wake-up fires.
	UpdateDelay uint32
	// AdHocFunding is granted to the wake-up when no voucher is usable.
	AdHocFunding uint64

	Armory combat.Armory
}

const (
	DefaultMaxPower       uint16 = 5_000
	DefaultMinPower       uint16 = 3_000
	DefaultMaxEnergy      uint16 = 10_000
	DefaultMinEnergy      uint16 = 20_000
	DefaultRoundStepLimit uint8  = 4
	DefaultUpdateDelay    uint32 = 10
	DefaultAdHocFunding   uint64 = 10_000_000_000
)

func DefaultConfig() Config {
	return Config{
		MaxPower:       DefaultMaxPower,
		MinPower:       DefaultMinPower,
		MaxEnergy:      DefaultMaxEnergy,
		MinEnergy:      DefaultMinEnergy,
		RoundStepLimit: DefaultRoundStepLimit,
		UpdateDelay:    DefaultUpdateDelay,
		AdHocFunding:   DefaultAdHocFunding,
		Armory:         combat.DefaultArmory(),
	}
}

func (c Config) Validate() error {
	if c.MaxPower == 0 {
		return errors.New("max_power must be > 0")
	}
	if c.MaxEnergy == 0 {
		return errors.New("max_energy must be > 0")
	}
	if c.UpdateDelay == 0 {
		return errors.New("update_delay must be > 0")
	}
	for id := range c.Armory.Weapons {
		if id == 0 {
			return fmt.Errorf("weapon id 0 is reserved")
		}
	}
	for id := range c.Armory.Shields {
		if id == 0 {
			return fmt.Errorf("shield id 0 is reserved")
		}
	}
	return nil
}
