package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.etcd.io/etcd/api/v3/mvccpb"
)

func TestNodeKey(t *testing.T) {
	assert.Equal(t, "/zephyrmesh/nodes/node-1", NodeKey("node-1"))
}

func TestSeedsFrom(t *testing.T) {
	kvs := []*mvccpb.KeyValue{
		{Key: []byte(NodeKey("c")), Value: []byte("10.0.0.3:4001")},
		{Key: []byte(NodeKey("self")), Value: []byte("10.0.0.1:4001")},
		{Key: []byte(NodeKey("a")), Value: []byte("10.0.0.2:4001")},
		{Key: []byte(NodeKey("empty")), Value: nil},
	}

	assert.Equal(t, []string{"10.0.0.2:4001", "10.0.0.3:4001"}, seedsFrom(kvs, "self"))
	assert.Empty(t, seedsFrom(nil, "self"))
}
