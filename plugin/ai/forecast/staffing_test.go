package forecast

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/covercast/store"
)

func TestRecommendStaff(t *testing.T) {
	p := testProfile()

	tests := []struct {
		name      string
		covers    float64
		servers   int
		hosts     int
		runners   int
		kitchen   int
		intensity string
		message   string
	}{
		{
			name: "busy", covers: 140,
			servers: 9, hosts: 3, runners: 4, kitchen: 5,
			intensity: IntensityBusy,
			message:   "Busy service expected (116% capacity). Full team recommended.",
		},
		{
			name: "moderate", covers: 80,
			servers: 5, hosts: 2, runners: 2, kitchen: 3,
			intensity: IntensityModerate,
			message:   "Moderate service (66% capacity). Standard staffing.",
		},
		{
			name: "light", covers: 50,
			servers: 4, hosts: 1, runners: 2, kitchen: 2,
			intensity: IntensityLight,
			message:   "Light service (41% capacity). Standard staffing.",
		},
		{
			name: "below breakeven uses minimums", covers: 10,
			servers: 2, hosts: 1, runners: 1, kitchen: 2,
			intensity: IntensityLight,
			message:   "Below breakeven (25 covers). Consider 2 servers minimum to control costs.",
		},
		{
			name: "zero covers", covers: 0,
			servers: 2, hosts: 1, runners: 0, kitchen: 2,
			intensity: IntensityLight,
			message:   "Below breakeven (25 covers). Consider 2 servers minimum to control costs.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := RecommendStaff(tt.covers, store.ServiceTypeDinner, p)
			require.NoError(t, err)
			assert.Equal(t, tt.servers, plan.Servers)
			assert.Equal(t, tt.hosts, plan.Hosts)
			assert.Equal(t, tt.runners, plan.Runners)
			assert.Equal(t, tt.kitchen, plan.Kitchen)
			assert.Equal(t, tt.servers+tt.hosts+tt.runners, plan.TotalFOH)
			assert.Equal(t, tt.kitchen, plan.TotalBOH)
			assert.Equal(t, tt.intensity, plan.Intensity)
			assert.Equal(t, tt.message, plan.Message)
			assert.Nil(t, plan.LaborCost)
		})
	}
}

func TestRecommendStaffUsesServiceTurns(t *testing.T) {
	p := testProfile()
	lunch, err := RecommendStaff(90, store.ServiceTypeLunch, p)
	require.NoError(t, err)
	assert.Equal(t, 100.0, lunch.CapacityPct)

	other, err := RecommendStaff(30, store.ServiceTypeOther, p)
	require.NoError(t, err)
	assert.Equal(t, 50.0, other.CapacityPct)
	assert.Equal(t, IntensityModerate, other.Intensity)
}

func TestRecommendStaffLaborCost(t *testing.T) {
	p := testProfile()
	p.RateServer, p.RateHost, p.RateRunner, p.RateKitchen = 20, 18, 15, 22
	p.ShiftHours = 6

	plan, err := RecommendStaff(140, store.ServiceTypeDinner, p)
	require.NoError(t, err)
	require.NotNil(t, plan.LaborCost)
	// (9*20 + 3*18 + 4*15 + 5*22) * 6
	assert.Equal(t, 2424.0, *plan.LaborCost)
}

func TestRecommendStaffMinimumsProperty(t *testing.T) {
	property := func(coversRaw uint16, ratios [4]uint8, mins [4]uint8) bool {
		p := testProfile()
		p.CoversPerServer = float64(ratios[0]%50) + 1
		p.CoversPerHost = float64(ratios[1]%50) + 1
		p.CoversPerRunner = float64(ratios[2]%50) + 1
		p.CoversPerKitchen = float64(ratios[3]%50) + 1
		p.MinServers, p.MinHosts, p.MinRunners, p.MinKitchen = int(mins[0]%6), int(mins[1]%6), int(mins[2]%6), int(mins[3]%6)
		covers := float64(coversRaw%1000) / 3

		plan, err := RecommendStaff(covers, store.ServiceTypeDinner, p)
		if err != nil {
			return false
		}
		check := func(got int, ratio float64, minimum int) bool {
			need := int(math.Ceil(covers / ratio))
			return got >= minimum && got >= need && (got == minimum || got == need)
		}
		return check(plan.Servers, p.CoversPerServer, p.MinServers) &&
			check(plan.Hosts, p.CoversPerHost, p.MinHosts) &&
			check(plan.Runners, p.CoversPerRunner, p.MinRunners) &&
			check(plan.Kitchen, p.CoversPerKitchen, p.MinKitchen)
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 500}))
}

func TestRecommendStaffInvalidProfile(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *store.RestaurantProfile)
	}{
		{"zero server ratio", func(p *store.RestaurantProfile) { p.CoversPerServer = 0 }},
		{"negative kitchen ratio", func(p *store.RestaurantProfile) { p.CoversPerKitchen = -3 }},
		{"NaN host ratio", func(p *store.RestaurantProfile) { p.CoversPerHost = math.NaN() }},
		{"negative minimum", func(p *store.RestaurantProfile) { p.MinRunners = -1 }},
		{"no seats", func(p *store.RestaurantProfile) { p.TotalSeats = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			tt.mutate(p)
			_, err := RecommendStaff(100, store.ServiceTypeDinner, p)
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}

	_, err := RecommendStaff(100, store.ServiceTypeDinner, nil)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestDefaultProfile(t *testing.T) {
	fine := DefaultProfile("chez_nous", "fine_dining")
	assert.Equal(t, "fine_dining", fine.OutletType)
	assert.Equal(t, 12.0, fine.CoversPerServer)
	assert.Equal(t, 1.5, fine.TurnsFor(store.ServiceTypeDinner))
	assert.Equal(t, store.NormalizeRestaurantID("chez_nous"), fine.ID)

	unknown := DefaultProfile("x", "food_truck")
	assert.Equal(t, DefaultOutletType, unknown.OutletType)
	assert.Equal(t, 16.0, unknown.CoversPerServer)
	assert.Equal(t, 2, unknown.MinServers)
	assert.Equal(t, 1, unknown.MinHosts)
	assert.Equal(t, 0, unknown.MinRunners)
	assert.Equal(t, 2, unknown.MinKitchen)

	assert.Equal(t, []string{"casual_dining", "fine_dining", "hotel_restaurant"}, OutletTypes())
}
