package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const zoneCacheTTL = 15 * time.Minute

// geoStore is the geography read API backing the resolver.
type geoStore interface {
	DivisionName(ctx context.Context, id int64) (string, error)
	DistrictName(ctx context.Context, id int64) (string, error)
	UpazilaName(ctx context.Context, id int64) (string, error)
	ZoneByUpazila(ctx context.Context, upazilaID int64) (*models.DeliveryZone, error)
}

// zoneCache holds serialized zone lookups; misses and failures fall through
// to the store.
type zoneCache interface {
	CacheZone(ctx context.Context, upazilaID int64, payload []byte, ttl time.Duration) error
	CachedZone(ctx context.Context, upazilaID int64) ([]byte, error)
}

// ShippingNames are the human-readable geography names copied onto the
// order snapshot. Missing lookups degrade to empty strings.
type ShippingNames struct {
	Division string
	District string
	Upazila  string
}

// GeoResolver resolves display names and delivery zones from the read-only
// geography reference tables, with a redis cache in front of zone lookups.
type GeoResolver struct {
	store  geoStore
	cache  zoneCache
	logger *zap.Logger
}

// NewGeoResolver creates a geography resolver. cache may be nil.
func NewGeoResolver(store geoStore, cache zoneCache) *GeoResolver {
	return &GeoResolver{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ShippingNames resolves the names for an order's shipping snapshot.
// Geography is cosmetic at this point: a failed lookup yields "" rather
// than failing the order. Zero ids are treated as unset.
func (g *GeoResolver) ShippingNames(ctx context.Context, divisionID, districtID, upazilaID int64) ShippingNames {
	return ShippingNames{
		Division: g.name(ctx, divisionID, g.store.DivisionName),
		District: g.name(ctx, districtID, g.store.DistrictName),
		Upazila:  g.name(ctx, upazilaID, g.store.UpazilaName),
	}
}

func (g *GeoResolver) name(ctx context.Context, id int64, lookup func(context.Context, int64) (string, error)) string {
	if id == 0 {
		return ""
	}
	name, err := lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			g.logger.Warn("Geography name lookup failed", zap.Int64("id", id), zap.Error(err))
		}
		return ""
	}
	return name
}

// ZoneByUpazila resolves the delivery zone mapped to an upazila,
// cache-first with DB fallback.
func (g *GeoResolver) ZoneByUpazila(ctx context.Context, upazilaID int64) (*models.DeliveryZone, error) {
	if g.cache != nil {
		if payload, err := g.cache.CachedZone(ctx, upazilaID); err == nil && payload != nil {
			var zone models.DeliveryZone
			if err := json.Unmarshal(payload, &zone); err == nil {
				return &zone, nil
			}
		} else if err != nil {
			g.logger.Warn("Zone cache read failed, falling back to DB",
				zap.Int64("upazila_id", upazilaID), zap.Error(err))
		}
	}

	zone, err := g.store.ZoneByUpazila(ctx, upazilaID)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if payload, err := json.Marshal(zone); err == nil {
			if err := g.cache.CacheZone(ctx, upazilaID, payload, zoneCacheTTL); err != nil {
				g.logger.Warn("Zone cache write failed",
					zap.Int64("upazila_id", upazilaID), zap.Error(err))
			}
		}
	}

	return zone, nil
}
