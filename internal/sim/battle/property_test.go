package battle

import (
	"testing"

	"pgregory.net/rapid"

	"tmgbattle.ai/internal/protocol"
	"tmgbattle.ai/internal/sim/combat"
	"tmgbattle.ai/internal/sim/model"
	"tmgbattle.ai/internal/sim/rng"
)

func TestMovesKeepInvariants(t *testing.T) {
	ids := []model.AttributeID{0, combat.SwordID, combat.WoodenSwordID, combat.ShotgunID, combat.RPGID, combat.ShieldID}
	rapid.Check(t, func(rt *rapid.T) {
		attrs := func(label string) model.Attributes {
			g := rapid.SampledFrom(ids)
			return model.SlotsOf(g.Draw(rt, label+"1"), g.Draw(rt, label+"2"), g.Draw(rt, label+"3"))
		}
		b, _ := New(DefaultConfig())
		for _, s := range []seat{
			{owner: alice, piece: "pA", attrs: attrs("a")},
			{owner: bob, piece: "pB", attrs: attrs("b")},
		} {
			out, err := b.Dispatch(envFor(s.owner, 0, nil), protocol.Register(s.piece, s.attrs))
			if err != nil {
				rt.Fatalf("register: %v", err)
			}
			src := rng.NewScript(
				rng.U16(rapid.Uint16().Draw(rt, "power")),
				rng.U16(rapid.Uint16().Draw(rt, "energy")),
				[]byte{rapid.Byte().Draw(rt, "facing")},
				[]byte{rapid.Byte().Draw(rt, "turn")},
			)
			env := Env{Caller: s.owner, Self: self, Rand: rng.New(src)}
			if _, err := b.Resume(env, OwnerReply{RequestID: out.Query.RequestID, Kind: ReplyOwner, Owner: s.owner}); err != nil {
				rt.Fatalf("resume: %v", err)
			}
		}
		if b.State() != model.StateMoves {
			rt.Fatalf("state = %s after two registrations", b.State())
		}

		sched := &stagedScheduler{}
		n := rapid.IntRange(1, 40).Draw(rt, "moves")
		for i := 0; i < n && b.State() == model.StateMoves; i++ {
			before := b.View()
			turn := before.CurrentTurn
			mover, defender := before.Players[turn], before.Players[1-turn]
			dir := model.Direction(rapid.IntRange(0, 1).Draw(rt, "dir"))

			// Expected damage from first principles on the advanced slot.
			arm := combat.DefaultArmory()
			next := mover.ActiveSlot%model.LastSlot + 1
			weapon := uint32(1)
			if m, ok := arm.Weapons[mover.Attributes.At(next)]; ok {
				weapon = uint32(m)
			}
			damage := uint16(0)
			_, shielded := arm.Shields[defender.Attributes.At(defender.ActiveSlot)]
			if dir == defender.Facing && !shielded {
				raw := uint32(mover.Power) * weapon
				if raw > 65535 {
					raw = 65535
				}
				damage = uint16(raw)
			}

			out, err := b.Dispatch(envFor(mover.Owner, uint64(i), sched), protocol.Move(dir))
			if err != nil {
				rt.Fatalf("move %d: %v", i, err)
			}
			want := uint16(0)
			if damage < defender.Energy {
				want = defender.Energy - damage
			}
			after := b.View()
			if want == 0 {
				if after.State != model.StateGameIsOver || len(after.Players) != 0 || after.Winner != mover.PieceID {
					rt.Fatalf("killing blow left %+v", after)
				}
				continue
			}
			if got := after.Players[1-turn].Energy; got != want {
				rt.Fatalf("defender energy = %d, want max(0, %d-%d)", got, defender.Energy, damage)
			}
			if dir != defender.Facing {
				if after.Players[1-turn].Energy != defender.Energy {
					rt.Fatalf("dodge changed energy")
				}
				if len(out.Notifications) == 0 || out.Notifications[0].Event.Kind != protocol.EvOpponentDodgedTheAttack {
					rt.Fatalf("dodge not reported: %+v", out.Notifications)
				}
			}
			if after.Steps > DefaultRoundStepLimit {
				rt.Fatalf("steps %d over limit", after.Steps)
			}
			if after.State == model.StateWaiting {
				for _, p := range after.Players {
					if p.ActiveSlot != model.FirstSlot {
						rt.Fatalf("slot not reset: %+v", p)
					}
				}
			}
		}
	})
}
