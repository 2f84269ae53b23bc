package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RestaurantProfile holds capacity, staffing ratios and minimum staff floors for one outlet.
// The prediction core only reads profiles.
type RestaurantProfile struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurant_id"`
	PropertyName string `json:"property_name,omitempty"`
	OutletName   string `json:"outlet_name,omitempty"`
	OutletType   string `json:"outlet_type,omitempty"`

	// Capacity
	TotalSeats int                     `json:"total_seats" validate:"gt=0"`
	Turns      map[ServiceType]float64 `json:"turns,omitempty" validate:"dive,gte=0"`

	// Business thresholds
	BreakevenCovers int     `json:"breakeven_covers,omitempty" validate:"gte=0"`
	TargetCovers    int     `json:"target_covers,omitempty" validate:"gte=0"`
	AverageTicket   float64 `json:"average_ticket,omitempty" validate:"gte=0"`

	// Staffing ratios (covers handled by one person in the role)
	CoversPerServer  float64 `json:"covers_per_server" validate:"gt=0"`
	CoversPerHost    float64 `json:"covers_per_host" validate:"gt=0"`
	CoversPerRunner  float64 `json:"covers_per_runner" validate:"gt=0"`
	CoversPerKitchen float64 `json:"covers_per_kitchen" validate:"gt=0"`

	// Minimum staff floors
	MinServers int `json:"min_servers" validate:"gte=0"`
	MinHosts   int `json:"min_hosts" validate:"gte=0"`
	MinRunners int `json:"min_runners" validate:"gte=0"`
	MinKitchen int `json:"min_kitchen" validate:"gte=0"`

	// Hourly rates, optional
	RateServer  float64 `json:"rate_server,omitempty" validate:"gte=0"`
	RateHost    float64 `json:"rate_host,omitempty" validate:"gte=0"`
	RateRunner  float64 `json:"rate_runner,omitempty" validate:"gte=0"`
	RateKitchen float64 `json:"rate_kitchen,omitempty" validate:"gte=0"`
	ShiftHours  float64 `json:"shift_hours,omitempty" validate:"gte=0"`

	// Forecast overrides; nil keeps the service configuration.
	BaselineCovers  map[ServiceType]float64 `json:"baseline_covers,omitempty" validate:"dive,gte=0"`
	TopK            *int                    `json:"top_k,omitempty" validate:"omitnil,gte=1,lte=20"`
	SimilarityFloor *float64                `json:"similarity_floor,omitempty" validate:"omitnil,gte=0,lte=1"`

	CreatedTs int64 `json:"created_ts"`
	UpdatedTs int64 `json:"updated_ts"`
}

// TurnsFor returns the seat turns configured for the service type, or 1 when unset.
func (p *RestaurantProfile) TurnsFor(serviceType ServiceType) float64 {
	if t, ok := p.Turns[serviceType]; ok && t > 0 {
		return t
	}
	return 1
}

// FindRestaurantProfile is the find condition for restaurant profiles.
type FindRestaurantProfile struct {
	RestaurantID string
}

// restaurantNamespace keeps restaurant UUIDs stable across deployments.
var restaurantNamespace = uuid.NameSpaceDNS

// NormalizeRestaurantID converts an external restaurant identifier into the UUID used for storage.
// Identifiers that already parse as UUIDs are kept; others map to a deterministic UUIDv5.
func NormalizeRestaurantID(restaurantID string) string {
	restaurantID = strings.TrimSpace(restaurantID)
	if restaurantID == "" {
		return ""
	}
	if id, err := uuid.Parse(restaurantID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(restaurantNamespace, []byte(restaurantID)).String()
}

// UpsertRestaurantProfile creates or replaces a restaurant profile.
func (s *Store) UpsertRestaurantProfile(ctx context.Context, upsert *RestaurantProfile) (*RestaurantProfile, error) {
	upsert.ID = NormalizeRestaurantID(upsert.RestaurantID)
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now
	return s.driver.UpsertRestaurantProfile(ctx, upsert)
}

// GetRestaurantProfile returns the profile for the restaurant, or nil when none exists.
func (s *Store) GetRestaurantProfile(ctx context.Context, restaurantID string) (*RestaurantProfile, error) {
	return s.driver.GetRestaurantProfile(ctx, &FindRestaurantProfile{
		RestaurantID: NormalizeRestaurantID(restaurantID),
	})
}
