package grbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/grblstream/coord"
)

func TestParseStatusReport(t *testing.T) {
	r, err := ParseStatusReport("Idle|MPos:1.000,2.000,3.000|FS:500,0")
	require.NoError(t, err)
	assert.Equal(t, "Idle", r.Status)
	assert.Equal(t, &coord.Point{X: 1, Y: 2, Z: 3}, r.MPos)
	assert.Nil(t, r.WPos)
	assert.Nil(t, r.WCO)
	require.NotNil(t, r.Feed)
	require.NotNil(t, r.Spindle)
	assert.Equal(t, 500.0, *r.Feed)
	assert.Equal(t, 0.0, *r.Spindle)

	r, err = ParseStatusReport("Hold:0|WCO:1,1,1|Bf:15,128|WPos:0.5,0.5,0.5|F:250|Ov:100,100,100")
	require.NoError(t, err)
	assert.Equal(t, "Hold:0", r.Status)
	assert.Equal(t, &coord.Point{X: 1, Y: 1, Z: 1}, r.WCO)
	assert.Equal(t, &coord.Point{X: .5, Y: .5, Z: .5}, r.WPos)
	assert.Nil(t, r.MPos)
	assert.Equal(t, 250.0, *r.Feed)
	assert.Nil(t, r.Spindle)

	r, err = ParseStatusReport("Alarm")
	require.NoError(t, err)
	assert.Equal(t, "Alarm", r.Status)

	_, err = ParseStatusReport("")
	assert.Error(t, err)
	_, err = ParseStatusReport("Idle|MPos:1,2")
	assert.Error(t, err)
	_, err = ParseStatusReport("Idle|FS:500")
	assert.Error(t, err)
}
