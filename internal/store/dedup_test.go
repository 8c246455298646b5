package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.client/internal/model"
)

func msg(id, sender int64) model.Message {
	return model.Message{ID: id, ConversationID: "p:2001", SenderID: sender, Content: []byte("m"), CreatedAt: 1000 + id}
}

func ids(log []model.Message) []int64 {
	out := make([]int64, 0, len(log))
	for _, m := range log {
		out = append(out, m.ID)
	}
	return out
}

func TestMergeMessages_AppendsNewInOrder(t *testing.T) {
	existing := []model.Message{msg(1, 2001), msg(2, 2001)}

	newLog, appended := MergeMessages(existing, []model.Message{msg(4, 2001), msg(3, 1001)})

	assert.Equal(t, []int64{1, 2, 4, 3}, ids(newLog))
	assert.Equal(t, []int64{4, 3}, ids(appended))
	assert.Len(t, existing, 2, "existing log must not be mutated")
}

func TestMergeMessages_FullDuplicateIsNoop(t *testing.T) {
	existing := []model.Message{msg(1, 2001), msg(2, 2001), msg(3, 2001)}

	newLog, appended := MergeMessages(existing, []model.Message{msg(1, 2001), msg(2, 2001), msg(3, 2001)})

	assert.Empty(t, appended)
	assert.Equal(t, ids(existing), ids(newLog))
}

func TestMergeMessages_DuplicatesWithinBatch(t *testing.T) {
	newLog, appended := MergeMessages(nil, []model.Message{msg(5, 2001), msg(5, 2001), msg(6, 2001), msg(5, 2001)})

	assert.Equal(t, []int64{5, 6}, ids(newLog))
	assert.Equal(t, []int64{5, 6}, ids(appended))
}

func TestMergeMessages_EmptyBatch(t *testing.T) {
	existing := []model.Message{msg(1, 2001)}
	newLog, appended := MergeMessages(existing, nil)
	assert.Nil(t, appended)
	assert.Equal(t, ids(existing), ids(newLog))
}

// 任意重复投递序列下，每个ID只出现一次且保持首次出现顺序
func TestMergeMessages_RepeatedBatchesKeepFirstSeenOrder(t *testing.T) {
	batches := [][]int64{
		{3, 1, 3},
		{1, 2},
		{2, 3, 4},
		{4, 4, 1, 5},
		{},
		{5, 3, 2, 1},
	}

	var log []model.Message
	var firstSeen []int64
	known := map[int64]bool{}
	for _, batch := range batches {
		in := make([]model.Message, 0, len(batch))
		for _, id := range batch {
			in = append(in, msg(id, 2001))
			if !known[id] {
				known[id] = true
				firstSeen = append(firstSeen, id)
			}
		}
		log, _ = MergeMessages(log, in)
	}

	require.Len(t, log, len(firstSeen))
	assert.Equal(t, firstSeen, ids(log))
}
