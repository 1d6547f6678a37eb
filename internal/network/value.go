package network

import "math"

// NetworkValue is the estimated value of a network of a given size.
type NetworkValue struct {
	Users         int     `json:"users"`
	Connections   float64 `json:"connections"`
	MetcalfeValue float64 `json:"metcalfe_value"`
	OdlyzkoValue  float64 `json:"odlyzko_value"`
	ValuePerUser  float64 `json:"value_per_user"`
}

// NetworkValueCalculator prices a network by its pairwise connections
// (Metcalfe) and by the more conservative n·ln(n) law (Odlyzko).
type NetworkValueCalculator struct {
	config Config
}

// NewNetworkValueCalculator binds a calculator to a snapshot of cfg.
func NewNetworkValueCalculator(cfg Config) *NetworkValueCalculator {
	return &NetworkValueCalculator{config: cfg.Clone()}
}

// Config returns the configuration the calculator was built with.
func (c *NetworkValueCalculator) Config() Config {
	return c.config.Clone()
}

// Calculate returns the value of a network with networkSize users.
func (c *NetworkValueCalculator) Calculate(networkSize int) NetworkValue {
	if networkSize <= 0 {
		return NetworkValue{}
	}
	n := float64(networkSize)
	connections := n * (n - 1) / 2
	v := NetworkValue{
		Users:         networkSize,
		Connections:   connections,
		MetcalfeValue: connections * c.config.ValuePerConnection,
		OdlyzkoValue:  n * math.Log(n) * c.config.ValuePerConnection,
	}
	v.ValuePerUser = v.MetcalfeValue / n
	return v
}

// MarginalValue is the Metcalfe value the next user adds to a network of
// networkSize users.
func (c *NetworkValueCalculator) MarginalValue(networkSize int) float64 {
	if networkSize < 0 {
		networkSize = 0
	}
	return float64(networkSize) * c.config.ValuePerConnection
}
