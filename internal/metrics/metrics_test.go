package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Loads.WithLabelValues(ResultOK).Inc()
	m.Writes.WithLabelValues("append", Result(nil)).Inc()
	m.Writes.WithLabelValues("append", Result(errors.New("boom"))).Inc()
	m.Dirty.Set(Bool(true))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("append", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dirty))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "basket_loads_total")
	assert.Contains(t, names, "basket_store_writes_total")
	assert.Contains(t, names, "basket_dirty")
}

func TestNopDoesNotRegister(t *testing.T) {
	a := Nop()
	b := Nop()
	a.Items.Set(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Items))
}
