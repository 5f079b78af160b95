// Package core defines the domain vocabulary shared by the persona services:
// roles, audio slots, tiers, the provider capability interfaces and the error
// taxonomy.
package core

import (
	"fmt"
	"strings"
)

// Role is the relationship category a persona is built for.
type Role string

const (
	RoleWife     Role = "wife"
	RoleHusband  Role = "husband"
	RoleSon      Role = "son"
	RoleDaughter Role = "daughter"
	RoleFriend   Role = "friend"
	RoleGrandson Role = "grandson"
	RoleOthers   Role = "others"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleWife, RoleHusband, RoleSon, RoleDaughter, RoleFriend, RoleGrandson, RoleOthers}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Slot names an audio asset category within a role.
type Slot string

const (
	SlotOpening       Slot = "opening"
	SlotNickname      Slot = "nickname"
	SlotToneComfort   Slot = "tone_comfort"
	SlotToneEncourage Slot = "tone_encourage"
	SlotToneHumor     Slot = "tone_humor"
)

var slots = map[Slot]bool{
	SlotOpening:       true,
	SlotNickname:      true,
	SlotToneComfort:   true,
	SlotToneEncourage: true,
	SlotToneHumor:     true,
}

// ParseSlot validates a slot name.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToLower(strings.TrimSpace(s)))
	if !slots[slot] {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	return slot, nil
}

// IsTone reports whether the slot holds one of the emotional-register clips.
func (s Slot) IsTone() bool {
	return s == SlotToneComfort || s == SlotToneEncourage || s == SlotToneHumor
}

// Tier is the progression level. Tiers are totally ordered.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierEternal      Tier = "eternal"
)

var tierRank = map[Tier]int{
	TierBasic:        0,
	TierIntermediate: 1,
	TierAdvanced:     2,
	TierEternal:      3,
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierRank[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	return t, nil
}

// Rank returns the position of the tier in the ordering basic < intermediate < advanced < eternal.
// Unknown tiers rank below basic.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether t is the same as or higher than other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}
