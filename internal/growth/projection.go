// Package growth forecasts a population day by day from a k-factor,
// referral rate and churn rate, without simulating individual personas.
package growth

import "math"

// Default rates used when no option overrides them.
const (
	DefaultReferralRate = 0.10
	DefaultChurnRate    = 0.02

	// PlateauThreshold is the total relative growth over the horizon below
	// which a non-declining, sub-viral trajectory counts as a plateau.
	PlateauThreshold = 0.05
)

// Type classifies the shape of a trajectory.
type Type string

const (
	Exponential Type = "exponential"
	Linear      Type = "linear"
	Plateau     Type = "plateau"
	Declining   Type = "declining"
)

// DataPoint is the population on one day.
type DataPoint struct {
	Day          int     `json:"day"`
	Users        float64 `json:"users"`
	NewUsers     float64 `json:"new_users"`
	ChurnedUsers float64 `json:"churned_users"`
}

// Projection is a multi-day forecast.
type Projection struct {
	StartingUsers float64     `json:"starting_users"`
	KFactor       float64     `json:"k_factor"`
	Days          int         `json:"days"`
	ChurnRate     float64     `json:"churn_rate"`
	ReferralRate  float64     `json:"referral_rate"`
	DataPoints    []DataPoint `json:"data_points"`
	GrowthType    Type        `json:"growth_type"`
}

// Option configures a projection.
type Option func(*Projection)

// WithReferralRate sets the share of users who refer each day.
func WithReferralRate(rate float64) Option {
	return func(p *Projection) { p.ReferralRate = rate }
}

// WithChurnRate sets the daily churn rate.
func WithChurnRate(rate float64) Option {
	return func(p *Projection) { p.ChurnRate = rate }
}

// New builds a projection over days data points. Day 0 holds the starting
// population; each later day adds prev*k*referralRate new users and loses
// prev*churnRate. Negative inputs are treated as zero.
func New(startingUsers, kFactor float64, days int, opts ...Option) *Projection {
	p := &Projection{
		StartingUsers: nonNegative(startingUsers),
		KFactor:       nonNegative(kFactor),
		Days:          days,
		ReferralRate:  DefaultReferralRate,
		ChurnRate:     DefaultChurnRate,
	}
	if p.Days < 0 {
		p.Days = 0
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ReferralRate = nonNegative(p.ReferralRate)
	p.ChurnRate = nonNegative(p.ChurnRate)

	p.DataPoints = make([]DataPoint, 0, p.Days)
	users := p.StartingUsers
	for day := 0; day < p.Days; day++ {
		if day == 0 {
			p.DataPoints = append(p.DataPoints, DataPoint{Day: 0, Users: users})
			continue
		}
		added := users * p.KFactor * p.ReferralRate
		churned := users * p.ChurnRate
		users = math.Max(0, users+added-churned)
		p.DataPoints = append(p.DataPoints, DataPoint{
			Day:          day,
			Users:        users,
			NewUsers:     added,
			ChurnedUsers: churned,
		})
	}

	p.GrowthType = p.classify()
	return p
}

// NetDailyRate is k*referralRate - churnRate.
func (p *Projection) NetDailyRate() float64 {
	return p.KFactor*p.ReferralRate - p.ChurnRate
}

func (p *Projection) classify() Type {
	if p.NetDailyRate() < 0 {
		return Declining
	}
	if p.KFactor > 1 {
		return Exponential
	}
	if p.StartingUsers <= 0 || len(p.DataPoints) == 0 {
		return Plateau
	}
	final := p.DataPoints[len(p.DataPoints)-1].Users
	if (final-p.StartingUsers)/p.StartingUsers < PlateauThreshold {
		return Plateau
	}
	return Linear
}

// FinalUsers returns the population on the last day, or the starting
// population for an empty horizon.
func (p *Projection) FinalUsers() float64 {
	if len(p.DataPoints) == 0 {
		return p.StartingUsers
	}
	return p.DataPoints[len(p.DataPoints)-1].Users
}

// PeakUserCount returns the largest population across the data points.
func (p *Projection) PeakUserCount() float64 {
	peak := p.StartingUsers
	for _, dp := range p.DataPoints {
		if dp.Users > peak {
			peak = dp.Users
		}
	}
	return peak
}

// AverageDailyGrowthRate returns the mean day-over-day relative change, or
// 0 with fewer than two points or no starting users. Days that start from
// an empty population contribute no change.
func (p *Projection) AverageDailyGrowthRate() float64 {
	if len(p.DataPoints) < 2 || p.StartingUsers == 0 {
		return 0
	}
	var sum float64
	for i := 1; i < len(p.DataPoints); i++ {
		prev := p.DataPoints[i-1].Users
		if prev == 0 {
			continue
		}
		sum += (p.DataPoints[i].Users - prev) / prev
	}
	return sum / float64(len(p.DataPoints)-1)
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
