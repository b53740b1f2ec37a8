package azconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New("acct", "ct")
	assert.Equal(t, 10*time.Second, c.ConnectTimeout)
	assert.Equal(t, 30*time.Second, c.ReadTimeout)
	assert.Equal(t, 10, c.NRetries)
	assert.True(t, c.NThreads >= 1)
}

func TestNewSplitsContainerNameOnFirstSlash(t *testing.T) {
	c := New("acct", "ct/sub/dir")
	assert.Equal(t, "ct", c.ContainerName)
	assert.Equal(t, "sub/dir", c.Prefix)
}

func TestNewAppendsSplitRemainderToExistingPrefix(t *testing.T) {
	c := New("acct", "ct/sub", WithPrefix("dir"))
	assert.Equal(t, "ct", c.ContainerName)
	assert.Equal(t, "dir/sub", c.Prefix)
}

func TestEqualComparesOnlyAddressingFields(t *testing.T) {
	a := New("acct", "ct", WithPrefix("p"), WithNThreads(4))
	b := New("acct", "ct", WithPrefix("p"), WithNThreads(1))
	assert.True(t, a.Equal(b))

	c := New("acct", "other", WithPrefix("p"))
	assert.False(t, a.Equal(c))
}

func TestWithNRetriesOverridesDefault(t *testing.T) {
	c := New("acct", "ct", WithNRetries(3))
	assert.Equal(t, 3, c.NRetries)
}
