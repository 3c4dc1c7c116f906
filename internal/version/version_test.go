package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()
	require.NotEmpty(t, info.Version)
	require.NotEmpty(t, info.Commit)
	require.NotEmpty(t, info.Date)
	require.Equal(t, "version="+info.Version+" commit="+info.Commit+" date="+info.Date, info.String())
}
