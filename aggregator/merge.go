package aggregator

import (
	"sort"

	"github.com/testmux/testmux/types"
)

// Type weights for same-timestamp ordering: a lifecycle event sorts after a
// captured message sharing its tick, so output a test wrote "at" an event
// lands before the event itself.
const (
	weightMessage = 0
	weightEvent   = 1
)

// mergedItem is the transient union used during merge: exactly one of event
// or message is set. index is the item's position within its own source
// sequence, keeping same-type ties in arrival order.
type mergedItem struct {
	seq    uint64
	weight int
	index  int

	event   *types.LifecycleEvent
	message *types.CapturedMessage
}

// mergeOrdered combines one worker's buffered lifecycle events with its
// captured output into a single deterministic replay order. Sort keys, in
// order: logical timestamp ascending, messages before events on equal
// timestamps, original buffering index ascending within the same type.
func mergeOrdered(events []types.LifecycleEvent, messages []types.CapturedMessage) []mergedItem {
	items := make([]mergedItem, 0, len(events)+len(messages))
	for i := range events {
		items = append(items, mergedItem{
			seq:    events[i].Seq,
			weight: weightEvent,
			index:  i,
			event:  &events[i],
		})
	}
	for i := range messages {
		items = append(items, mergedItem{
			seq:     messages[i].Seq,
			weight:  weightMessage,
			index:   i,
			message: &messages[i],
		})
	}

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.seq != b.seq {
			return a.seq < b.seq
		}
		if a.weight != b.weight {
			return a.weight < b.weight
		}
		return a.index < b.index
	})
	return items
}
