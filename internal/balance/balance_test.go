package balance

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plantdoc-yolo/internal/dataset"
)

func byClass(r dataset.Record) string { return r.Class }

func records(counts map[string]int) []dataset.Record {
	var out []dataset.Record
	for class, n := range counts {
		for i := 0; i < n; i++ {
			out = append(out, dataset.Record{
				Filename: class + "_" + string(rune('a'+i)) + ".jpg",
				Class:    class,
			})
		}
	}
	return out
}

func TestBalanceReachesTarget(t *testing.T) {
	in := records(map[string]int{"rust": 2, "scab": 7, "mold": 10})

	out, report := Balance(in, byClass, 7, rand.New(rand.NewSource(42)))

	counts := dataset.Count(out, byClass)
	assert.Equal(t, 7, counts["rust"])
	assert.Equal(t, 7, counts["scab"])
	assert.Equal(t, 10, counts["mold"], "目標以上のクラスは間引かない")
	assert.Equal(t, 5, report.Added)
	assert.Len(t, out, len(in)+5)

	require.Len(t, report.Changes, 3)
	assert.Equal(t, Change{Class: "mold", Before: 10, After: 10}, report.Changes[0])
	assert.Equal(t, Change{Class: "rust", Before: 2, After: 7}, report.Changes[1])
}

func TestBalanceDuplicatesAreUniqueAndTraceable(t *testing.T) {
	in := []dataset.Record{
		{Filename: "a.jpg", Class: "x"},
		{Filename: "a_dup0.jpg", Class: "y"},
	}

	out, _ := Balance(in, byClass, 5, rand.New(rand.NewSource(7)))

	names := map[string]bool{}
	for _, r := range out {
		assert.False(t, names[r.Filename], "ファイル名が重複しない: %s", r.Filename)
		names[r.Filename] = true

		if r.DuplicateOf != "" {
			assert.Contains(t, []string{"a.jpg", "a_dup0.jpg"}, r.DuplicateOf)
			assert.Equal(t, r.DuplicateOf == "a.jpg", r.Class == "x")
		}
	}
	assert.Len(t, out, 10)
}

func TestBalanceOriginalsUntouched(t *testing.T) {
	in := records(map[string]int{"a": 1})

	out, _ := Balance(in, byClass, 3, rand.New(rand.NewSource(1)))

	assert.Equal(t, in[0], out[0])
	assert.Equal(t, "a_a_dup0.jpg", out[1].Filename)
	assert.Equal(t, "a_a_dup1.jpg", out[2].Filename)
	assert.Equal(t, "a_a.jpg", out[2].SourceName())
}

func TestBalanceDisabled(t *testing.T) {
	in := records(map[string]int{"a": 1, "b": 4})

	out, report := Balance(in, byClass, 0, rand.New(rand.NewSource(1)))

	assert.Equal(t, in, out)
	assert.Zero(t, report.Added)
	assert.Empty(t, report.Changes)
}

func TestBalanceEmpty(t *testing.T) {
	out, report := Balance(nil, byClass, 10, rand.New(rand.NewSource(1)))
	assert.Empty(t, out)
	assert.Zero(t, report.Added)
}

func TestDuplicateName(t *testing.T) {
	assert.Equal(t, "leaf_dup3.jpg", DuplicateName("leaf.jpg", 3))
	assert.Equal(t, "noext_dup0", DuplicateName("noext", 0))
	assert.Equal(t, "a.b_dup1.png", DuplicateName("a.b.png", 1))
}

func TestDistribution(t *testing.T) {
	in := records(map[string]int{"b": 3, "a": 1})

	dist := Distribution(in, byClass)
	require.Len(t, dist, 2)
	assert.Equal(t, "a", dist[0].Class)
	assert.Equal(t, 1, dist[0].Count)
	assert.InDelta(t, 25.0, dist[0].Percent, 1e-9)
	assert.InDelta(t, 75.0, dist[1].Percent, 1e-9)

	assert.Empty(t, Distribution(nil, byClass))
}
