package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteText(t *testing.T) {
	m := NewMetrics()
	m.ObserveFetch(ResultOK, 120*time.Millisecond)
	m.ObserveFetch(ResultError, time.Second)
	m.ObserveFetch(ResultOK, 80*time.Millisecond)
	m.ObserveCache(ResultFresh)
	m.ObserveInstall(ResultError)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, `shop_fetch_total{result="ok"} 2`)
	assert.Contains(t, out, `shop_fetch_total{result="error"} 1`)
	assert.Contains(t, out, `shop_cache_total{result="fresh"} 1`)
	assert.Contains(t, out, `shop_install_items_total{result="error"} 1`)
	assert.Contains(t, out, "shop_fetch_duration_seconds_count 3")
}

func TestNewMetricsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ObserveCache(ResultMiss)

	var buf bytes.Buffer
	require.NoError(t, b.WriteText(&buf))
	assert.NotContains(t, buf.String(), `shop_cache_total{result="miss"}`)
	assert.NotNil(t, Default())
}
