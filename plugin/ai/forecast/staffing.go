package forecast

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hrygo/covercast/store"
)

// Service intensity by share of seat capacity.
const (
	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityBusy     = "busy"
)

// StaffingPlan is the recommended headcount for one service.
type StaffingPlan struct {
	Servers     int      `json:"servers"`
	Hosts       int      `json:"hosts"`
	Runners     int      `json:"runners"`
	Kitchen     int      `json:"kitchen"`
	TotalFOH    int      `json:"total_foh"`
	TotalBOH    int      `json:"total_boh"`
	CapacityPct float64  `json:"capacity_pct"`
	Intensity   string   `json:"intensity"`
	Message     string   `json:"message"`
	LaborCost   *float64 `json:"labor_cost,omitempty"`
}

// RecommendStaff computes headcount per role as ceil(covers / ratio), raised to the
// role's minimum. It fails with ErrInvalidProfile when a ratio is not positive,
// a minimum is negative or the restaurant has no seats.
func RecommendStaff(covers float64, serviceType store.ServiceType, p *store.RestaurantProfile) (*StaffingPlan, error) {
	if err := checkStaffingProfile(p); err != nil {
		return nil, err
	}
	if covers < 0 || math.IsNaN(covers) {
		covers = 0
	}

	plan := &StaffingPlan{
		Servers: headcount(covers, p.CoversPerServer, p.MinServers),
		Hosts:   headcount(covers, p.CoversPerHost, p.MinHosts),
		Runners: headcount(covers, p.CoversPerRunner, p.MinRunners),
		Kitchen: headcount(covers, p.CoversPerKitchen, p.MinKitchen),
	}
	plan.TotalFOH = plan.Servers + plan.Hosts + plan.Runners
	plan.TotalBOH = plan.Kitchen

	capacity := float64(p.TotalSeats) * p.TurnsFor(serviceType)
	plan.CapacityPct = math.Round(covers/capacity*1000) / 10
	switch {
	case plan.CapacityPct < 50:
		plan.Intensity = IntensityLight
	case plan.CapacityPct < 80:
		plan.Intensity = IntensityModerate
	default:
		plan.Intensity = IntensityBusy
	}

	switch {
	case p.BreakevenCovers > 0 && covers < float64(p.BreakevenCovers):
		plan.Message = fmt.Sprintf("Below breakeven (%d covers). Consider %d servers minimum to control costs.", p.BreakevenCovers, plan.Servers)
	case plan.Intensity == IntensityBusy:
		plan.Message = fmt.Sprintf("Busy service expected (%d%% capacity). Full team recommended.", int(plan.CapacityPct))
	default:
		plan.Message = fmt.Sprintf("%s service (%d%% capacity). Standard staffing.", capitalize(plan.Intensity), int(plan.CapacityPct))
	}

	if p.ShiftHours > 0 {
		hourly := float64(plan.Servers)*p.RateServer +
			float64(plan.Hosts)*p.RateHost +
			float64(plan.Runners)*p.RateRunner +
			float64(plan.Kitchen)*p.RateKitchen
		if hourly > 0 {
			cost := math.Round(hourly*p.ShiftHours*100) / 100
			plan.LaborCost = &cost
		}
	}
	return plan, nil
}

func checkStaffingProfile(p *store.RestaurantProfile) error {
	if p == nil {
		return fmt.Errorf("%w: missing profile", ErrInvalidProfile)
	}
	if p.TotalSeats <= 0 {
		return fmt.Errorf("%w: total_seats must be positive", ErrInvalidProfile)
	}
	ratios := []struct {
		name  string
		value float64
	}{
		{"covers_per_server", p.CoversPerServer},
		{"covers_per_host", p.CoversPerHost},
		{"covers_per_runner", p.CoversPerRunner},
		{"covers_per_kitchen", p.CoversPerKitchen},
	}
	for _, r := range ratios {
		if !(r.value > 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidProfile, r.name, r.value)
		}
	}
	if p.MinServers < 0 || p.MinHosts < 0 || p.MinRunners < 0 || p.MinKitchen < 0 {
		return fmt.Errorf("%w: staff minimums must not be negative", ErrInvalidProfile)
	}
	return nil
}

func headcount(covers, ratio float64, minimum int) int {
	n := int(math.Ceil(covers / ratio))
	if n < minimum {
		return minimum
	}
	return n
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// IndustryPreset holds the staffing ratios typical of one kind of restaurant.
type IndustryPreset struct {
	CoversPerServer    float64 `json:"covers_per_server"`
	CoversPerHost      float64 `json:"covers_per_host"`
	CoversPerRunner    float64 `json:"covers_per_runner"`
	CoversPerKitchen   float64 `json:"covers_per_kitchen"`
	TurnsDinner        float64 `json:"turns_dinner"`
	LaborCostTargetPct float64 `json:"labor_cost_target_pct"`
}

// DefaultOutletType is used when a restaurant has no stored profile.
const DefaultOutletType = "hotel_restaurant"

// IndustryDefaults are the presets by outlet type.
var IndustryDefaults = map[string]IndustryPreset{
	"fine_dining": {
		CoversPerServer:    12,
		CoversPerHost:      40,
		CoversPerRunner:    30,
		CoversPerKitchen:   20,
		TurnsDinner:        1.5,
		LaborCostTargetPct: 32,
	},
	"casual_dining": {
		CoversPerServer:    20,
		CoversPerHost:      60,
		CoversPerRunner:    50,
		CoversPerKitchen:   35,
		TurnsDinner:        2.5,
		LaborCostTargetPct: 28,
	},
	DefaultOutletType: {
		CoversPerServer:    16,
		CoversPerHost:      60,
		CoversPerRunner:    40,
		CoversPerKitchen:   30,
		TurnsDinner:        2.0,
		LaborCostTargetPct: 30,
	},
}

// OutletTypes lists the preset names in sorted order.
func OutletTypes() []string {
	types := make([]string, 0, len(IndustryDefaults))
	for t := range IndustryDefaults {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultProfile builds a profile for restaurantID from the outlet type preset.
// Unknown outlet types use DefaultOutletType.
func DefaultProfile(restaurantID, outletType string) *store.RestaurantProfile {
	preset, ok := IndustryDefaults[outletType]
	if !ok {
		outletType = DefaultOutletType
		preset = IndustryDefaults[outletType]
	}
	return &store.RestaurantProfile{
		ID:           store.NormalizeRestaurantID(restaurantID),
		RestaurantID: restaurantID,
		OutletType:   outletType,
		TotalSeats:   60,
		Turns: map[store.ServiceType]float64{
			store.ServiceTypeBreakfast: 1.0,
			store.ServiceTypeLunch:     1.5,
			store.ServiceTypeDinner:    preset.TurnsDinner,
		},
		CoversPerServer:  preset.CoversPerServer,
		CoversPerHost:    preset.CoversPerHost,
		CoversPerRunner:  preset.CoversPerRunner,
		CoversPerKitchen: preset.CoversPerKitchen,
		MinServers:       2,
		MinHosts:         1,
		MinRunners:       0,
		MinKitchen:       2,
	}
}
