package raster

import (
	"math"
	"time"
)

// Worker statistics for the last processed block.
type Stats struct {
	// The worker id.
	Id string

	// Number of tile rows in the last block.
	BlockH int

	// Time spent compositing the last block.
	BlockTime time.Duration
}

// A compositing worker.
type Worker struct {
	id    string
	stats Stats
}

// Get worker id.
func (w *Worker) Id() string {
	return w.id
}

// Get last block statistics.
func (w *Worker) Stats() Stats {
	return w.stats
}

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split a frame with the given number of tile rows into blocks and
	// assign one block to each worker. The returned slice holds the
	// block height for each worker; heights may be zero and always add
	// up to rows.
	Schedule(workers []*Worker, rows int) []int
}

type naiveScheduler struct{}

// Create a scheduler that splits rows evenly between workers.
func NaiveScheduler() BlockScheduler {
	return naiveScheduler{}
}

func (naiveScheduler) Schedule(workers []*Worker, rows int) []int {
	assignment := make([]int, len(workers))
	if len(workers) == 0 {
		return assignment
	}
	base, extra := rows/len(workers), rows%len(workers)
	for idx := range assignment {
		assignment[idx] = base
		if idx < extra {
			assignment[idx]++
		}
	}
	return assignment
}

// The perfect scheduler assumes that the compositing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	blockAssignment []int
}

// Create a scheduler that balances blocks using the timings of the
// previous frame.
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// Split frame into blocks of variable height using feedback collected from
// the previous frame. Worker w receives a share of rows proportional to
// blockH_w / time_w / Σ(blockH / time). If no usable timings are available
// (first frame, worker count changed or zero timings) rows are split evenly.
func (sch *perfectScheduler) Schedule(workers []*Worker, rows int) []int {
	if len(sch.blockAssignment) != len(workers) || !haveTimings(workers) {
		sch.blockAssignment = NaiveScheduler().Schedule(workers, rows)
		return sch.blockAssignment
	}

	var total float64
	for _, w := range workers {
		total += float64(w.stats.BlockH) / float64(w.stats.BlockTime)
	}
	if total == 0 {
		sch.blockAssignment = NaiveScheduler().Schedule(workers, rows)
		return sch.blockAssignment
	}

	scaler := float64(rows) / total
	scheduledRows := 0
	for idx, w := range workers {
		sch.blockAssignment[idx] = int(math.Floor(float64(w.stats.BlockH) / float64(w.stats.BlockTime) * scaler))
		scheduledRows += sch.blockAssignment[idx]
	}

	// In case rows don't add up to the frame height append the missing ones to the first worker
	sch.blockAssignment[0] += rows - scheduledRows

	return sch.blockAssignment
}

func haveTimings(workers []*Worker) bool {
	for _, w := range workers {
		if w.stats.BlockTime <= 0 {
			return false
		}
	}
	return true
}
