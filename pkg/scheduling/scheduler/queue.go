package scheduler

import (
	"container/heap"
)

// jobQueue is a min-heap of jobs ordered by next run time.
type jobQueue []*job

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].runAt.Equal(q[j].runAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].runAt.Before(q[j].runAt)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x any) {
	j := x.(*job)
	j.index = len(*q)
	*q = append(*q, j)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*q = old[:n-1]
	return j
}

// peek returns the job due first, or nil.
func (q jobQueue) peek() *job {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *jobQueue) remove(j *job) {
	if j.index >= 0 && j.index < len(*q) && (*q)[j.index] == j {
		heap.Remove(q, j.index)
	}
}
