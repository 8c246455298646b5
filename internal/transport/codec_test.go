package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.client/internal/model"
)

func TestDecodeMessageBatch(t *testing.T) {
	data := []byte(`{"ConversationId":"","Messages":[
		{"ServerMsgId":11,"FromUserId":2001,"ToUserId":1001,"MsgType":1,"Content":"aGk=","Timestamp":1700000000000},
		{"ServerMsgId":0,"FromUserId":2001},
		{"ServerMsgId":12,"FromUserId":1001,"ToUserId":2001,"MsgType":1,"Content":"eW8=","Timestamp":1700000000001}
	]}`)

	msgs, err := DecodeMessageBatch(data, 1001, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(11), msgs[0].ID)
	assert.Equal(t, "p:2001", msgs[0].ConversationID)
	assert.Equal(t, "hi", msgs[0].Text())
	assert.Equal(t, "p:2001", msgs[1].ConversationID)
	assert.Equal(t, int64(1001), msgs[1].SenderID)

	msgs, err = DecodeMessageBatch(data, 1001, "p:9")
	require.NoError(t, err)
	assert.Equal(t, "p:9", msgs[0].ConversationID)

	_, err = DecodeMessageBatch([]byte("{"), 1001, "")
	assert.Error(t, err)
}

func TestEncodeDecodeMessageBatch(t *testing.T) {
	in := []model.Message{{ID: 5, SenderID: 2001, MsgType: model.MessageTypeText, Content: []byte("x"), CreatedAt: 9}}
	data, err := EncodeMessageBatch("g:3", in)
	require.NoError(t, err)

	out, err := DecodeMessageBatch(data, 1001, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "g:3", out[0].ConversationID)
	assert.Equal(t, int64(9), out[0].CreatedAt)
}

func TestDecodePresence(t *testing.T) {
	userID, online, err := DecodePresence([]byte(`{"UserId":2001,"Online":true,"Timestamp":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2001), userID)
	assert.True(t, online)
}

func TestDecodeConversationList(t *testing.T) {
	data := []byte(`{"Full":false,"Conversations":[
		{"ConversationId":"p:2001","UnreadCount":3,"LastMsgId":8,"UpdateAt":100},
		{"ConversationId":"g:7","Participants":[{"UserId":1001},{"UserId":2001,"Nickname":"Pat"}],"IsMuted":true},
		{"ConversationId":""}
	],"Removed":["p:3001"]}`)

	list, err := DecodeConversationList(data, 1001)
	require.NoError(t, err)
	assert.False(t, list.Full)
	assert.Equal(t, []string{"p:3001"}, list.Removed)
	require.Len(t, list.Conversations, 2)

	private := list.Conversations[0]
	assert.Equal(t, 3, private.UnreadCount)
	other, ok := private.Other()
	require.True(t, ok)
	assert.Equal(t, int64(2001), other.UserID)

	group := list.Conversations[1]
	assert.True(t, group.Muted)
	assert.Equal(t, model.RoleSelf, group.Participants[0].Role)
	assert.Equal(t, "Pat", group.Participants[1].Nickname)
}

func TestNewUserMessage(t *testing.T) {
	msg, err := NewUserMessage(1001, "p:2001", "c1", []byte("hi"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2001), msg.ToUserId)
	assert.Equal(t, int64(0), msg.ToGroupId)

	msg, err = NewUserMessage(1001, "g:7", "c2", []byte("hi"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.ToGroupId)

	_, err = NewUserMessage(1001, "bogus", "c3", nil, 5)
	assert.Error(t, err)
}
