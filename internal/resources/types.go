package resources

import (
	"math/rand/v2"
)

// Resource types.
const (
	TypeMineral = "mineral"
	TypeWater   = "water"
)

// MineralSpawner places ore deposits. Richness comes from 3D noise at the
// deposit so neighbouring deposits have correlated yields.
type MineralSpawner struct {
	BaseQuantity int
	Spread       int
}

// NewMineralSpawner returns a spawner with default yields.
func NewMineralSpawner() *MineralSpawner {
	return &MineralSpawner{BaseQuantity: 20, Spread: 40}
}

func (s *MineralSpawner) ResourceType() string { return TypeMineral }
func (s *MineralSpawner) MinimumCount() int    { return 1 }
func (s *MineralSpawner) MaximumCount() int    { return 4 }

// Minerals favour high ground.
func (s *MineralSpawner) CalculateProbability(sample float64) float64 {
	return clamp01(0.35 + 0.5*sample)
}

func (s *MineralSpawner) CreateResourceNode(p Params, rng *rand.Rand, index int) *Node {
	local := placeNode(p, rng)
	qty := s.BaseQuantity + rng.IntN(s.Spread+1)
	if p.Noise3D != nil {
		gx := float64(p.CX)*p.Width + float64(local[0])
		gz := float64(p.CY)*p.Height + float64(local[2])
		rich := p.Noise3D(gx*0.01, float64(local[1])*0.01, gz*0.01)
		qty = int(float64(qty) * (1 + 0.5*rich))
	}
	return &Node{
		ID:       nodeID(p, TypeMineral, index),
		Type:     TypeMineral,
		Quantity: max(qty, 1),
		Local:    local,
	}
}

func (s *MineralSpawner) Spawn(p Params) []*Node { return spawn(s, p) }

func (s *MineralSpawner) HandleInteraction(n *Node, amount int) int {
	return take(n, amount)
}

// WaterSpawner places springs. Springs are loose: a single interaction
// draws at least MinDraw units.
type WaterSpawner struct {
	Quantity int
	MinDraw  int
}

// NewWaterSpawner returns a spawner with default yields.
func NewWaterSpawner() *WaterSpawner {
	return &WaterSpawner{Quantity: 100, MinDraw: 10}
}

func (s *WaterSpawner) ResourceType() string { return TypeWater }
func (s *WaterSpawner) MinimumCount() int    { return 1 }
func (s *WaterSpawner) MaximumCount() int    { return 2 }

// Water favours low ground.
func (s *WaterSpawner) CalculateProbability(sample float64) float64 {
	return clamp01(0.25 - 0.5*sample)
}

func (s *WaterSpawner) CreateResourceNode(p Params, rng *rand.Rand, index int) *Node {
	return &Node{
		ID:       nodeID(p, TypeWater, index),
		Type:     TypeWater,
		Quantity: s.Quantity,
		Local:    placeNode(p, rng),
		Loose:    true,
	}
}

func (s *WaterSpawner) Spawn(p Params) []*Node { return spawn(s, p) }

func (s *WaterSpawner) HandleInteraction(n *Node, amount int) int {
	return take(n, max(amount, s.MinDraw))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
