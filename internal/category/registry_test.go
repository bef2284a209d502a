package category

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func highRisk(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func TestParseCSV(t *testing.T) {
	data := `category_id,category_name
1,Exchange
2,Ransomware
3,Gambling
4,Mixer
badrow
5,  Dark Forum
`
	reg, err := ParseCSV(strings.NewReader(data), highRisk("Ransomware", "Mixer", "Dark Forum"))
	require.NoError(t, err)

	assert.Equal(t, 5, reg.Size())
	assert.Equal(t, "Exchange", reg.NameOf("1"))
	assert.Equal(t, "Gambling", reg.NameOf("3"))
	// Whitespace is trimmed on both columns.
	assert.Equal(t, "Dark Forum", reg.NameOf("5"))

	assert.True(t, reg.IsHighRisk("2"))
	assert.True(t, reg.IsHighRisk("4"))
	assert.True(t, reg.IsHighRisk("5"))
	assert.False(t, reg.IsHighRisk("1"))
	assert.False(t, reg.IsHighRisk("3"))
	assert.Len(t, reg.HighRiskIDs(), 3)
}

func TestNameOf_UnknownIsStable(t *testing.T) {
	reg := Empty()
	// Repeated lookups for the same unmapped id always return the sentinel.
	assert.Equal(t, Unknown, reg.NameOf("999"))
	assert.Equal(t, Unknown, reg.NameOf("999"))
	assert.Empty(t, reg.HighRiskIDs())
}

func TestHighRiskIDs_StableAcrossCalls(t *testing.T) {
	reg := NewRegistry(map[string]string{"7": "Scam"}, highRisk("Scam"))
	first := reg.HighRiskIDs()
	second := reg.HighRiskIDs()
	assert.Equal(t, first, second)
	assert.Contains(t, second, "7")
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV("does-not-exist.csv", nil)
	assert.Error(t, err)
}
