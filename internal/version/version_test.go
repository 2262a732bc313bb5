package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	prevV, prevC, prevD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() { version, commit, date = prevV, prevC, prevD })
}

func TestDefaultsForLocalBuild(t *testing.T) {
	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "foodies-order-api/dev", UserAgent("order-api"))
}

func TestLdflagsValuesReachAllRenderings(t *testing.T) {
	withBuild(t, "1.4.0", "a1b2c3d", "2026-10-01")

	assert.Equal(t, "1.4.0", GetVersion())
	assert.Equal(t, "1.4.0 (commit=a1b2c3d date=2026-10-01)", String())
	assert.Equal(t, "foodies-offline-client/1.4.0", UserAgent("offline-client"))
	assert.Equal(t, map[string]any{"version": "1.4.0", "commit": "a1b2c3d", "date": "2026-10-01"}, map[string]any(Fields()))
}
