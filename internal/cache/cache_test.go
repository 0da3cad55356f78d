package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kass/go-eco-route/pkg/geo"
	"github.com/kass/go-eco-route/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	almaly  = models.Location{Lat: 43.2567, Lng: 76.9286}
	airport = models.Location{Lat: 43.3526, Lng: 77.0405}
)

func TestKey(t *testing.T) {
	departure := time.Date(2024, 1, 15, 8, 3, 20, 0, time.UTC)

	key := Key(almaly, airport, models.PreferenceAir, departure)
	expected := geo.Geohash(almaly, 7) + ":" + geo.Geohash(airport, 7) + ":air:2024-01-15T08:00:00Z"
	assert.Equal(t, expected, key)

	testCases := []struct {
		name  string
		other string
		same  bool
	}{
		{"Same slot", Key(almaly, airport, models.PreferenceAir, departure.Add(time.Minute)), true},
		{"Nearby start", Key(models.Location{Lat: almaly.Lat + 0.000001, Lng: almaly.Lng}, airport, models.PreferenceAir, departure), true},
		{"Next slot", Key(almaly, airport, models.PreferenceAir, time.Date(2024, 1, 15, 8, 5, 0, 0, time.UTC)), false},
		{"Other profile", Key(almaly, airport, models.PreferenceTraffic, departure), false},
		{"Reversed", Key(airport, almaly, models.PreferenceAir, departure), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.same, key == tc.other)
		})
	}
}

func TestSlotIsUTC(t *testing.T) {
	almaty := time.FixedZone("ALMT", 5*60*60)
	local := time.Date(2024, 1, 15, 13, 7, 0, 0, almaty)
	assert.Equal(t, "2024-01-15T08:05:00Z", Slot(local))
}

func TestTTLFor(t *testing.T) {
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	c := New[string](DefaultTTL, DefaultLongTTL, DefaultHorizon, time.Minute)
	c.now = func() time.Time { return now }

	assert.Equal(t, DefaultTTL, c.TTLFor(time.Time{}))
	assert.Equal(t, DefaultTTL, c.TTLFor(now.Add(time.Hour)))
	assert.Equal(t, DefaultTTL, c.TTLFor(now.Add(3*time.Hour)))
	assert.Equal(t, DefaultLongTTL, c.TTLFor(now.Add(3*time.Hour+time.Second)))
	assert.Equal(t, DefaultTTL, c.TTLFor(now.Add(-time.Hour)))
}

func TestGetOrCompute(t *testing.T) {
	c := New[string](time.Minute, time.Minute, time.Hour, time.Minute)

	v, hit, err := c.GetOrCompute("k", time.Minute, func() (string, error) { return "computed", nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "computed", v)

	v, hit, err = c.GetOrCompute("k", time.Minute, func() (string, error) {
		t.Fatal("compute must not run on a hit")
		return "", nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "computed", v)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	c.Flush()
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestGetOrComputeErrorsAreNotCached(t *testing.T) {
	c := New[int](time.Minute, time.Minute, time.Hour, time.Minute)
	boom := errors.New("boom")

	_, _, err := c.GetOrCompute("k", time.Minute, func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, hit, err := c.GetOrCompute("k", time.Minute, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)
}

func TestGetOrComputeExpires(t *testing.T) {
	c := New[int](time.Minute, time.Minute, time.Hour, time.Minute)

	_, _, err := c.GetOrCompute("k", 20*time.Millisecond, func() (int, error) { return 1, nil })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[int](time.Minute, time.Minute, time.Hour, time.Minute)

	var calls atomic.Int32
	compute := func() (int, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := c.GetOrCompute("shared", time.Minute, compute)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
