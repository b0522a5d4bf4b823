package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy holds the marketplace thresholds. Zero-valued fields in a policy file
// keep their defaults.
type Policy struct {
	VIPThreshold        decimal.Decimal `yaml:"vip_threshold"`
	VIPDiscount         decimal.Decimal `yaml:"vip_discount"`
	LoyaltyTransactions int             `yaml:"loyalty_transactions"`
	// LoyaltyRequiresCleanRecord limits the loyalty VIP override to accounts
	// with no complaints received. Off by default.
	LoyaltyRequiresCleanRecord bool `yaml:"loyalty_requires_clean_record"`

	BadRatingMax        int     `yaml:"bad_rating_max"`
	BadRatingsToSuspend int     `yaml:"bad_ratings_to_suspend"`
	MeanMinRatings      int     `yaml:"mean_min_ratings"`
	MeanLow             float64 `yaml:"mean_low"`
	MeanHigh            float64 `yaml:"mean_high"`
	ForceQuitAt         int     `yaml:"force_quit_at"`

	CriticalLowRatings int `yaml:"critical_low_ratings"`
	CriticalComplaints int `yaml:"critical_complaints"`
	GenerousWindow     int `yaml:"generous_window"`
}

func DefaultPolicy() Policy {
	return Policy{
		VIPThreshold:        decimal.NewFromInt(5000),
		VIPDiscount:         decimal.NewFromFloat(0.10),
		LoyaltyTransactions: 5,
		BadRatingMax:        2,
		BadRatingsToSuspend: 3,
		MeanMinRatings:      3,
		MeanLow:             2.0,
		MeanHigh:            4.0,
		ForceQuitAt:         3,
		CriticalLowRatings:  3,
		CriticalComplaints:  3,
		GenerousWindow:      5,
	}
}

// VIPRate is the fraction of the nominal price a VIP buyer pays.
func (p Policy) VIPRate() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.VIPDiscount)
}

func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var overrides Policy
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	return DefaultPolicy().merge(overrides), nil
}

func (p Policy) merge(o Policy) Policy {
	if !o.VIPThreshold.IsZero() {
		p.VIPThreshold = o.VIPThreshold
	}
	if !o.VIPDiscount.IsZero() {
		p.VIPDiscount = o.VIPDiscount
	}
	if o.LoyaltyTransactions > 0 {
		p.LoyaltyTransactions = o.LoyaltyTransactions
	}
	p.LoyaltyRequiresCleanRecord = o.LoyaltyRequiresCleanRecord
	if o.BadRatingMax > 0 {
		p.BadRatingMax = o.BadRatingMax
	}
	if o.BadRatingsToSuspend > 0 {
		p.BadRatingsToSuspend = o.BadRatingsToSuspend
	}
	if o.MeanMinRatings > 0 {
		p.MeanMinRatings = o.MeanMinRatings
	}
	if o.MeanLow > 0 {
		p.MeanLow = o.MeanLow
	}
	if o.MeanHigh > 0 {
		p.MeanHigh = o.MeanHigh
	}
	if o.ForceQuitAt > 0 {
		p.ForceQuitAt = o.ForceQuitAt
	}
	if o.CriticalLowRatings > 0 {
		p.CriticalLowRatings = o.CriticalLowRatings
	}
	if o.CriticalComplaints > 0 {
		p.CriticalComplaints = o.CriticalComplaints
	}
	if o.GenerousWindow > 0 {
		p.GenerousWindow = o.GenerousWindow
	}
	return p
}
