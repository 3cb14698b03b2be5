package migration

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedInOrder(t *testing.T) {
	ms, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, ms)

	for i := 1; i < len(ms); i++ {
		assert.Less(t, ms[i-1].Version, ms[i].Version)
	}
	assert.Equal(t, "000001_orders", ms[0].Version)

	var all strings.Builder
	for _, m := range ms {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{
		"cod_fees_config", "cod_orders", "cod_verification",
		"cod_delivery_attempts", "cod_payment_collection", "cod_status_history",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestLoad_SkipsNonUpFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.up.sql":   {Data: []byte("B")},
		"m/001_a.up.sql":   {Data: []byte("A")},
		"m/001_a.down.sql": {Data: []byte("drop")},
		"m/README.md":      {Data: []byte("x")},
	}

	ms, err := load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, Migration{Version: "001_a", SQL: "A"}, ms[0])
	assert.Equal(t, Migration{Version: "002_b", SQL: "B"}, ms[1])
}
