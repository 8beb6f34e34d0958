package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeoStore struct {
	divisions map[int64]string
	districts map[int64]string
	upazilas  map[int64]string
	zones     map[int64]*models.DeliveryZone
	nameErr   error
	zoneCalls int
}

func (f *fakeGeoStore) lookup(m map[int64]string, id int64) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	name, ok := m[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}

func (f *fakeGeoStore) DivisionName(ctx context.Context, id int64) (string, error) {
	return f.lookup(f.divisions, id)
}

func (f *fakeGeoStore) DistrictName(ctx context.Context, id int64) (string, error) {
	return f.lookup(f.districts, id)
}

func (f *fakeGeoStore) UpazilaName(ctx context.Context, id int64) (string, error) {
	return f.lookup(f.upazilas, id)
}

func (f *fakeGeoStore) ZoneByUpazila(ctx context.Context, upazilaID int64) (*models.DeliveryZone, error) {
	f.zoneCalls++
	zone, ok := f.zones[upazilaID]
	if !ok {
		return nil, fmt.Errorf("delivery zone for upazila %d: %w", upazilaID, store.ErrNotFound)
	}
	return zone, nil
}

type fakeZoneCache struct {
	m       map[int64][]byte
	readErr error
	writes  int
}

func newFakeZoneCache() *fakeZoneCache {
	return &fakeZoneCache{m: make(map[int64][]byte)}
}

func (f *fakeZoneCache) CacheZone(ctx context.Context, upazilaID int64, payload []byte, ttl time.Duration) error {
	f.m[upazilaID] = append([]byte(nil), payload...)
	f.writes++
	return nil
}

func (f *fakeZoneCache) CachedZone(ctx context.Context, upazilaID int64) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.m[upazilaID], nil
}

func testGeoStore() *fakeGeoStore {
	return &fakeGeoStore{
		divisions: map[int64]string{3: "Dhaka"},
		districts: map[int64]string{18: "Dhaka"},
		upazilas:  map[int64]string{204: "Dhanmondi"},
		zones:     map[int64]*models.DeliveryZone{204: cityCore()},
	}
}

func TestShippingNamesResolved(t *testing.T) {
	geo := NewGeoResolver(testGeoStore(), nil)

	names := geo.ShippingNames(context.Background(), 3, 18, 204)
	assert.Equal(t, "Dhaka", names.Division)
	assert.Equal(t, "Dhaka", names.District)
	assert.Equal(t, "Dhanmondi", names.Upazila)
}

func TestShippingNamesMissingRowsDegradeToEmpty(t *testing.T) {
	geo := NewGeoResolver(testGeoStore(), nil)

	// unknown ids must not fail, the snapshot just loses its labels
	names := geo.ShippingNames(context.Background(), 99, 18, 999)
	assert.Equal(t, "", names.Division)
	assert.Equal(t, "Dhaka", names.District)
	assert.Equal(t, "", names.Upazila)
}

func TestShippingNamesLookupErrorDegradesToEmpty(t *testing.T) {
	st := testGeoStore()
	st.nameErr = errors.New("connection refused")
	geo := NewGeoResolver(st, nil)

	names := geo.ShippingNames(context.Background(), 3, 18, 204)
	assert.Equal(t, ShippingNames{}, names)
}

func TestShippingNamesZeroIDsSkipLookup(t *testing.T) {
	geo := NewGeoResolver(&fakeGeoStore{nameErr: errors.New("must not be called")}, nil)

	names := geo.ShippingNames(context.Background(), 0, 0, 0)
	assert.Equal(t, ShippingNames{}, names)
}

func TestZoneByUpazilaCacheMissFillsCache(t *testing.T) {
	st := testGeoStore()
	cache := newFakeZoneCache()
	geo := NewGeoResolver(st, cache)

	zone, err := geo.ZoneByUpazila(context.Background(), 204)
	require.NoError(t, err)
	assert.Equal(t, "CityCore", zone.Name)
	assert.Equal(t, 1, st.zoneCalls)
	assert.Equal(t, 1, cache.writes)

	// second lookup is served from the cache
	zone, err = geo.ZoneByUpazila(context.Background(), 204)
	require.NoError(t, err)
	assert.Equal(t, "CityCore", zone.Name)
	assert.Equal(t, int64(60), zone.BaseCharge)
	assert.Equal(t, 1, st.zoneCalls)
}

func TestZoneByUpazilaCorruptCacheEntryFallsThrough(t *testing.T) {
	st := testGeoStore()
	cache := newFakeZoneCache()
	cache.m[204] = []byte("{not json")
	geo := NewGeoResolver(st, cache)

	zone, err := geo.ZoneByUpazila(context.Background(), 204)
	require.NoError(t, err)
	assert.Equal(t, "CityCore", zone.Name)
	assert.Equal(t, 1, st.zoneCalls)

	// the bad entry is overwritten with a good one
	var cached models.DeliveryZone
	require.NoError(t, json.Unmarshal(cache.m[204], &cached))
	assert.Equal(t, "CityCore", cached.Name)
}

func TestZoneByUpazilaCacheReadErrorFallsThrough(t *testing.T) {
	st := testGeoStore()
	cache := newFakeZoneCache()
	cache.readErr = errors.New("timeout")
	geo := NewGeoResolver(st, cache)

	zone, err := geo.ZoneByUpazila(context.Background(), 204)
	require.NoError(t, err)
	assert.Equal(t, "CityCore", zone.Name)
	assert.Equal(t, 1, st.zoneCalls)
}

func TestZoneByUpazilaUnmappedUpazila(t *testing.T) {
	geo := NewGeoResolver(testGeoStore(), newFakeZoneCache())

	_, err := geo.ZoneByUpazila(context.Background(), 777)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
