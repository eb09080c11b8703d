package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextIDPacksTimeAndCounter(t *testing.T) {
	l := &Log{}
	at := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	first := l.nextID(at)
	assert.Equal(t, at.UnixMilli(), first>>16)
	assert.Equal(t, int64(0), first&0xFFFF)

	second := l.nextID(at)
	assert.Equal(t, int64(1), second&0xFFFF)
	assert.Greater(t, second, first)
}

func TestNextIDResetsCounterOnNewMillisecond(t *testing.T) {
	l := &Log{}
	at := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	l.nextID(at)
	l.nextID(at)
	next := l.nextID(at.Add(time.Millisecond))
	assert.Equal(t, int64(0), next&0xFFFF)
	assert.Equal(t, at.Add(time.Millisecond).UnixMilli(), next>>16)
}

func TestNextIDOrdersAcrossMilliseconds(t *testing.T) {
	l := &Log{}
	at := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	var prev int64
	for i := 0; i < 100; i++ {
		id := l.nextID(at.Add(time.Duration(i/3) * time.Millisecond))
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestParseEventTime(t *testing.T) {
	parsed, err := parseEventTime("2026-08-31 12:00:00.123456")
	require.NoError(t, err)
	assert.Equal(t, 123456000, parsed.Nanosecond())

	parsed, err = parseEventTime("2026-08-31 12:00:00")
	require.NoError(t, err)
	assert.Equal(t, 12, parsed.Hour())

	_, err = parseEventTime("not a time")
	assert.Error(t, err)
}

func TestContextOptionalFields(t *testing.T) {
	assert.Nil(t, optStr(""))
	v := optStr("simplefin")
	require.NotNil(t, v)
	assert.Equal(t, "simplefin", *v)
}
