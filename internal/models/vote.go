package models

import (
	"encoding/json"
	"fmt"
)

// VoteStatus is the phase of a single participant's vote.
type VoteStatus string

const (
	VoteEmpty   VoteStatus = "Empty"
	VoteHidden  VoteStatus = "Hidden"
	VoteVisible VoteStatus = "Visible"
)

// VoteState is a participant's vote. Only Hidden and Visible votes carry an amount.
// The zero value is the empty vote, so states compare with ==.
type VoteState struct {
	status VoteStatus
	amount uint32
}

func EmptyVote() VoteState {
	return VoteState{}
}

func HiddenVote(amount uint32) VoteState {
	return VoteState{status: VoteHidden, amount: amount}
}

func VisibleVote(amount uint32) VoteState {
	return VoteState{status: VoteVisible, amount: amount}
}

// Status returns the vote's phase.
func (v VoteState) Status() VoteStatus {
	if v.status == "" {
		return VoteEmpty
	}
	return v.status
}

// Amount returns the vote amount, if the vote carries one.
func (v VoteState) Amount() (uint32, bool) {
	if v.Status() == VoteEmpty {
		return 0, false
	}
	return v.amount, true
}

// Vote places a new hidden vote, replacing whatever was there.
func (v VoteState) Vote(amount uint32) VoteState {
	return HiddenVote(amount)
}

// Reveal turns a hidden vote visible. Empty and visible votes are unchanged.
func (v VoteState) Reveal() VoteState {
	if v.Status() == VoteHidden {
		return VisibleVote(v.amount)
	}
	return v.normalize()
}

// Clear empties a visible vote. Hidden votes survive a clear.
func (v VoteState) Clear() VoteState {
	if v.Status() == VoteVisible {
		return EmptyVote()
	}
	return v.normalize()
}

// Reset empties any vote.
func (v VoteState) Reset() VoteState {
	return EmptyVote()
}

func (v VoteState) normalize() VoteState {
	if v.Status() == VoteEmpty {
		return EmptyVote()
	}
	return v
}

func (v VoteState) String() string {
	if amount, ok := v.Amount(); ok {
		return fmt.Sprintf("%s(%d)", v.Status(), amount)
	}
	return string(VoteEmpty)
}

type voteJSON struct {
	State  VoteStatus `json:"state"`
	Amount *uint32    `json:"amount,omitempty"`
}

// MarshalJSON stores the full vote, hidden amount included.
// Use PublicVote for anything leaving the server.
func (v VoteState) MarshalJSON() ([]byte, error) {
	out := voteJSON{State: v.Status()}
	if amount, ok := v.Amount(); ok {
		out.Amount = &amount
	}
	return json.Marshal(out)
}

func (v *VoteState) UnmarshalJSON(data []byte) error {
	var in voteJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	switch in.State {
	case VoteEmpty, "":
		*v = EmptyVote()
	case VoteHidden, VoteVisible:
		if in.Amount == nil {
			return fmt.Errorf("vote state %s requires an amount", in.State)
		}
		*v = VoteState{status: in.State, amount: *in.Amount}
	default:
		return fmt.Errorf("unknown vote state %q", in.State)
	}
	return nil
}

// PublicVote is the redacted view of a vote: hidden amounts never appear.
type PublicVote struct {
	State  VoteStatus `json:"state"`
	Amount *uint32    `json:"amount"`
}

func (v VoteState) Public() PublicVote {
	pv := PublicVote{State: v.Status()}
	if v.Status() == VoteVisible {
		amount := v.amount
		pv.Amount = &amount
	}
	return pv
}
