package auditlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreWithEmptyDSNReturnsNoop(t *testing.T) {
	store, err := NewStore(t.Context(), "")
	require.NoError(t, err)
	assert.IsType(t, noopStore{}, store)

	assert.NoError(t, store.Append(t.Context(), Entry{Kind: KindChatTurn}))
	assert.NoError(t, store.Close())
}

func TestDriverForSelectsBackendByScheme(t *testing.T) {
	cases := []struct {
		dsn        string
		wantDriver string
		wantSource string
	}{
		{"dolt://root@/audit", "dolt", "root@/audit"},
		{"mysql://root@tcp(127.0.0.1:3306)/audit", "mysql", "root@tcp(127.0.0.1:3306)/audit"},
		{"root@tcp(127.0.0.1:3306)/audit", "mysql", "root@tcp(127.0.0.1:3306)/audit"},
	}
	for _, c := range cases {
		driver, source := driverFor(c.dsn)
		assert.Equal(t, c.wantDriver, driver, c.dsn)
		assert.Equal(t, c.wantSource, source, c.dsn)
	}
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))
}
