package upload

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: the part plan for any file covers 1..ceil(size/chunk) with no
// gaps and no duplicates, and the part ranges tile the file exactly.
func TestProperty_PartPlanCoversFile(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("part count is the ceiling of size over chunk size", prop.ForAll(
		func(size, chunkSize int64) bool {
			total := int64(partCount(size, chunkSize))
			return total*chunkSize >= size && (total-1)*chunkSize < size
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1<<20, 1<<30),
	))

	properties.Property("part numbers are contiguous from 1 and byte ranges tile the file", prop.ForAll(
		func(size, chunkSize int64) bool {
			total := partCount(size, chunkSize)

			var covered int64
			var prevEnd int64
			for n := int32(1); n <= total; n++ {
				offset, length := partRange(n, chunkSize, size)
				if length <= 0 || length > chunkSize {
					return false
				}
				// Each part starts exactly where the previous one ended.
				if offset != prevEnd {
					return false
				}
				prevEnd = offset + length
				covered += length
			}
			return covered == size && prevEnd == size
		},
		gen.Int64Range(1, 1<<16),
		gen.Int64Range(1, 1<<12),
	))

	properties.TestingRun(t)
}

// Property: a completion manifest sorted from any arrival order is strictly
// ascending by part number.
func TestProperty_ManifestSortIsStrictlyAscending(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sorted manifest is strictly ascending regardless of completion order", prop.ForAll(
		func(totalParts int, seed int64) bool {
			parts := make([]PartETag, totalParts)
			for i := range parts {
				parts[i] = PartETag{PartNumber: int32(i + 1), ETag: "etag"}
			}
			rand.New(rand.NewSource(seed)).Shuffle(len(parts), func(i, j int) {
				parts[i], parts[j] = parts[j], parts[i]
			})

			sortParts(parts)

			for i, part := range parts {
				if part.PartNumber != int32(i+1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 500),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

// Property: the strategy boundary is inclusive on the multipart side.
func TestProperty_StrategyBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("multipart iff size >= threshold", prop.ForAll(
		func(size, threshold int64) bool {
			strategy := SelectStrategy(size, threshold)
			if size >= threshold {
				return strategy == StrategyMultipart
			}
			return strategy == StrategySingleShot
		},
		gen.Int64Range(0, 1<<40),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}

// Property: aggregate progress stays within [0, 100] and never decreases as
// byte and completion updates are applied in any order.
func TestProperty_AggregateProgressMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("aggregate percent is bounded and non-decreasing", prop.ForAll(
		func(sizes []int64, seed int64) bool {
			tasks := make([]*Task, len(sizes))
			for i, size := range sizes {
				tasks[i] = newTask(NewBytesSource("f", "application/octet-stream", make([]byte, int(size))), StrategySingleShot)
			}
			agg := newAggregator(tasks)

			rng := rand.New(rand.NewSource(seed))
			previous := agg.snapshot().PercentComplete
			if previous < 0 || previous > 100 {
				return false
			}

			// Apply each task's bytes in random-sized increments, completing
			// tasks along the way.
			for _, size := range sizes {
				remaining := size
				for remaining > 0 {
					step := rng.Int63n(remaining) + 1
					agg.addBytes(step)
					remaining -= step

					percent := agg.snapshot().PercentComplete
					if percent < previous || percent > 100 {
						return false
					}
					previous = percent
				}
				agg.markCompleted()

				percent := agg.snapshot().PercentComplete
				if percent < previous || percent > 100 {
					return false
				}
				previous = percent
			}

			return len(sizes) == 0 || agg.snapshot().PercentComplete == 100
		},
		gen.SliceOf(gen.Int64Range(1, 1<<20)),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
