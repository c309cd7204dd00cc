package application

import "fmt"

// RuleID names one lifecycle rule.
type RuleID string

const (
	RuleExpirePending  RuleID = "expire_pending"  // R1: Pending -> removed
	RuleDemoteDormant  RuleID = "demote_dormant"  // R2: Active -> Dormant
	RuleDeleteDormant  RuleID = "delete_dormant"  // R3: Dormant -> Deleted
	RulePurgeDeleted   RuleID = "purge_deleted"   // R4: Deleted -> removed
	RuleAnonymize      RuleID = "anonymize"       // R5: Deleted -> Deleted (scrubbed)
	RuleDormancyNotice RuleID = "dormancy_notice" // R6: Active, notice sent
)

// RuleOrder is the fixed execution order of a full cycle.
var RuleOrder = []RuleID{
	RuleExpirePending,
	RuleDemoteDormant,
	RuleDeleteDormant,
	RulePurgeDeleted,
	RuleAnonymize,
	RuleDormancyNotice,
}

var ruleDescriptions = map[RuleID]string{
	RuleExpirePending:  "remove unverified signups past the pending TTL",
	RuleDemoteDormant:  "demote inactive accounts to dormant",
	RuleDeleteDormant:  "soft-delete accounts dormant for too long",
	RulePurgeDeleted:   "permanently remove soft-deleted accounts past retention",
	RuleAnonymize:      "scrub identity fields of soft-deleted accounts",
	RuleDormancyNotice: "warn accounts approaching dormancy",
}

func (r RuleID) Description() string { return ruleDescriptions[r] }

// Position is the 1-based place of r in RuleOrder, or 0 when unknown.
func (r RuleID) Position() int {
	for i, id := range RuleOrder {
		if id == r {
			return i + 1
		}
	}
	return 0
}

func ParseRuleID(s string) (RuleID, error) {
	r := RuleID(s)
	if r.Position() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, s)
	}
	return r, nil
}

func LockKey(r RuleID) string { return "lifecycle:lock:" + string(r) }
