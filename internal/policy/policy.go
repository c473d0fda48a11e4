// Package policy decides whether a package may run.
// Evaluation is pure: callers load configuration and resolve categories.
package policy

import (
	"github.com/eliteGoblin/focusd/kidlock/internal/domain"
)

// Evaluate applies the rule set to a package. First match wins:
//
//  1. blacklisted            -> deny  BLACKLISTED
//  2. whitelisted            -> allow WHITELISTED
//  3. childAge < MinAge      -> deny  AGE_TOO_LOW
//  4. Category != category   -> deny  CATEGORY_DENIED
//  5. otherwise              -> allow ALLOWED
//
// The order is part of the contract. Blacklist beats whitelist, and a
// whitelisted package skips the age and category gates.
func Evaluate(pkg, category string, childAge int, rule domain.LockRule) domain.PolicyDecision {
	switch {
	case rule.Blacklisted(pkg):
		return deny(domain.ReasonBlacklisted)
	case rule.Whitelisted(pkg):
		return allow(domain.ReasonWhitelisted)
	case rule.MinAge > 0 && childAge < rule.MinAge:
		return deny(domain.ReasonAgeTooLow)
	case rule.Category != "" && rule.Category != category:
		return deny(domain.ReasonCategoryDenied)
	default:
		return allow(domain.ReasonAllowed)
	}
}

// CheckBudget denies once usedMinutes reaches an enabled daily limit.
// It is an extra tier applied after Evaluate allowed a non-whitelisted package.
func CheckBudget(usedMinutes int64, limit domain.DailyLimit) domain.PolicyDecision {
	if limit.Enabled() && usedMinutes >= int64(limit.Minutes) {
		return deny(domain.ReasonBudgetExceeded)
	}
	return allow(domain.ReasonAllowed)
}

func allow(r domain.Reason) domain.PolicyDecision {
	return domain.PolicyDecision{Allowed: true, Reason: r}
}

func deny(r domain.Reason) domain.PolicyDecision {
	return domain.PolicyDecision{Allowed: false, Reason: r}
}
