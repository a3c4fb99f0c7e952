package queue_test

import (
	"fmt"
	"time"

	"github.com/plinthdb/plinth/flush"
	"github.com/plinthdb/plinth/mem"
	"github.com/plinthdb/plinth/queue"
)

type event struct {
	Kind uint32
	Seq  uint64
}

func Example() {
	region := mem.NewRegion(1024)

	q, err := queue.NewTyped[event](region)
	if err != nil {
		panic(err)
	}

	// the scheduler flushes the queue header; mutations mark it dirty
	scheduler := flush.New(q, 100*time.Millisecond)
	defer scheduler.Close()
	q.Raw().SetCommitter(scheduler)

	for seq := uint64(1); seq <= 3; seq++ {
		if err := q.Enqueue(&event{Kind: 7, Seq: seq}); err != nil {
			panic(err)
		}
	}

	for e, err := q.Dequeue(); err == nil; e, err = q.Dequeue() {
		fmt.Println(e.Kind, e.Seq)
	}

	// Output:
	// 7 1
	// 7 2
	// 7 3
}
