package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResetAndRecord(t *testing.T) {
	Reset()
	RecordThrottled(100)
	RecordTimeout(50)
	RecordTimeout(25)

	c := Get()
	assert.EqualValues(t, 100, c.MsWaitThrottled)
	assert.EqualValues(t, 1, c.CountThrottled)
	assert.EqualValues(t, 75, c.MsWaitTimeouts)
	assert.EqualValues(t, 2, c.CountTimeouts)

	Reset()
	c = Get()
	assert.Zero(t, c.MsWaitThrottled)
	assert.Zero(t, c.CountTimeouts)
}
