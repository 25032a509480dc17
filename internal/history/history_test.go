package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/fleaprice/internal/models"
)

func TestRing_Advance(t *testing.T) {
	r := NewRing(DefaultPeriods)

	assert.Equal(t, 0, r.Advance(143))
	assert.Equal(t, 6, r.Advance(5))
	assert.Equal(t, 1, r.Advance(0))
	// corrupted index heals to slot 0 before advancing
	assert.Equal(t, 1, r.Advance(200))
}

func TestRing_Normalize(t *testing.T) {
	r := NewRing(DefaultPeriods)

	assert.Equal(t, 0, r.Normalize(200))
	assert.Equal(t, 0, r.Normalize(144))
	assert.Equal(t, 0, r.Normalize(-1))
	assert.Equal(t, 143, r.Normalize(143))
}

func TestRing_FullCycleVisitsEverySlotOnce(t *testing.T) {
	r := NewRing(6)
	seen := make(map[int]int)
	i := 0
	for n := 0; n < 6; n++ {
		seen[i]++
		i = r.Advance(i)
	}
	assert.Equal(t, 0, i)
	assert.Len(t, seen, 6)
}

func TestNewRing_DefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultPeriods, NewRing(0).Periods)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModePresentOnly, m)

	m, err = ParseMode("all_slots")
	require.NoError(t, err)
	assert.Equal(t, ModeAllSlots, m)

	_, err = ParseMode("median")
	assert.Error(t, err)
}

func snapshots(prices ...map[string]int64) []models.PeriodSnapshot {
	out := make([]models.PeriodSnapshot, len(prices))
	for i, p := range prices {
		out[i] = models.PeriodSnapshot{Slot: i, Prices: p}
	}
	return out
}

func TestAverager_PresentOnly(t *testing.T) {
	snaps := snapshots(
		map[string]int64{"a": 10, "b": 7},
		map[string]int64{"b": 9},
		map[string]int64{"a": 20},
		map[string]int64{},
		map[string]int64{"a": 30},
	)
	items := []models.Item{{ID: "a"}, {ID: "b"}, {ID: "never"}}

	got := Averager{Mode: ModePresentOnly}.Compute(snaps, items)

	assert.Equal(t, int64(20), got["a"])
	assert.Equal(t, int64(8), got["b"])
	_, ok := got["never"]
	assert.False(t, ok, "item absent from every slot must be omitted")
	assert.Len(t, got, 2)
}

func TestAverager_AllSlots(t *testing.T) {
	snaps := snapshots(
		map[string]int64{"a": 10},
		map[string]int64{},
		map[string]int64{"a": 20},
		map[string]int64{},
		map[string]int64{"a": 30},
	)
	got := Averager{Mode: ModeAllSlots}.Compute(snaps, []models.Item{{ID: "a"}})
	assert.Equal(t, int64(12), got["a"])
}

func TestAverager_IgnoresItemsOutsideCatalog(t *testing.T) {
	snaps := snapshots(map[string]int64{"a": 10, "retired": 99})
	got := Averager{}.Compute(snaps, []models.Item{{ID: "a"}})
	assert.Equal(t, models.HistoryAverage{"a": 10}, got)
}

func TestAverager_NoSnapshots(t *testing.T) {
	got := Averager{}.Compute(nil, []models.Item{{ID: "a"}})
	assert.Empty(t, got)
}
