package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ApprovalPolicy controls which authority tiers a request must pass through.
// The final-approver tier is always required; the lower tiers are gated by
// the request amount.
type ApprovalPolicy struct {
	// FinancialReviewMinAmount is the amount (inclusive) from which a
	// financial-staff review step is required. Zero means always required.
	FinancialReviewMinAmount int64 `mapstructure:"financialReviewMinAmount"`
	// SeniorApprovalMinAmount is the amount (inclusive) from which a
	// senior-approver step is required.
	SeniorApprovalMinAmount int64 `mapstructure:"seniorApprovalMinAmount"`
	// CategoryOverrides allows a per-category senior approval threshold.
	CategoryOverrides map[string]int64 `mapstructure:"categoryOverrides"`
}

// SeniorThresholdFor returns the senior-approval threshold for a category.
func (p ApprovalPolicy) SeniorThresholdFor(category string) int64 {
	category = strings.ToLower(strings.TrimSpace(category))
	if override, ok := p.CategoryOverrides[category]; ok {
		return override
	}
	return p.SeniorApprovalMinAmount
}

func DefaultApprovalPolicy() ApprovalPolicy {
	return ApprovalPolicy{
		FinancialReviewMinAmount: 0,
		SeniorApprovalMinAmount:  500_000,
	}
}

// ApprovalPolicyHolder exposes the current approval policy and hot-reloads it
// when the backing config file changes.
type ApprovalPolicyHolder struct {
	current atomic.Value // holds ApprovalPolicy
}

func NewApprovalPolicyHolder() (*ApprovalPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("approval")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/steward/config")
	v.AddConfigPath("/etc/steward")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STEWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultApprovalPolicy()
		v.SetDefault("approval.financialReviewMinAmount", defaults.FinancialReviewMinAmount)
		v.SetDefault("approval.seniorApprovalMinAmount", defaults.SeniorApprovalMinAmount)
	}

	var policy ApprovalPolicy
	if err := v.UnmarshalKey("approval", &policy); err != nil {
		return nil, err
	}
	if err := validateApprovalPolicy(policy); err != nil {
		return nil, err
	}

	holder := &ApprovalPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ApprovalPolicy
		if err := v.UnmarshalKey("approval", &updated); err != nil {
			log.Printf("[approval-policy] reload failed: %v", err)
			return
		}
		if err := validateApprovalPolicy(updated); err != nil {
			log.Printf("[approval-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[approval-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticApprovalPolicyHolder returns a holder pinned to one policy,
// with no file watching. Used by tests and embedded setups.
func NewStaticApprovalPolicyHolder(policy ApprovalPolicy) *ApprovalPolicyHolder {
	holder := &ApprovalPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// Current returns the active policy.
func (h *ApprovalPolicyHolder) Current() ApprovalPolicy {
	if h == nil {
		return DefaultApprovalPolicy()
	}
	if policy, ok := h.current.Load().(ApprovalPolicy); ok {
		return policy
	}
	return DefaultApprovalPolicy()
}

func validateApprovalPolicy(policy ApprovalPolicy) error {
	if policy.FinancialReviewMinAmount < 0 {
		return errors.New("financialReviewMinAmount must not be negative")
	}
	if policy.SeniorApprovalMinAmount < 0 {
		return errors.New("seniorApprovalMinAmount must not be negative")
	}
	for category, threshold := range policy.CategoryOverrides {
		if strings.TrimSpace(category) == "" {
			return errors.New("category override key must not be empty")
		}
		if threshold < 0 {
			return errors.New("category override threshold must not be negative")
		}
	}
	return nil
}
