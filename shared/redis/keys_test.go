package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "im:user:location:1001:web", BuildUserLocationKeyWithPlatform(1001, "web"))
	assert.Equal(t, "im:conv:idx:1001", BuildConversationIndexKey(1001))
	assert.Equal(t, "p:2001", BuildConversationPeerMember(2001))
	assert.Equal(t, "g:7", BuildConversationGroupMember(7))
	assert.Equal(t, "im:conv:1001:p:2001", BuildConversationPeerKey(1001, 2001))
	assert.Equal(t, "im:conv:1001:g:7", BuildConversationGroupKey(1001, 7))
	assert.Len(t, AllPlatforms, 5)
}
