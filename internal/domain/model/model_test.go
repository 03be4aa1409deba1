package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForXP(t *testing.T) {
	cases := map[int]int{
		-5:  1,
		0:   1,
		99:  1,
		100: 2,
		249: 2,
		250: 3,
		450: 4,
	}
	for xp, want := range cases {
		assert.Equal(t, want, LevelForXP(xp), "xp=%d", xp)
	}
	assert.Equal(t, MaxLevel, LevelForXP(1<<30))
}

func TestXPForLevel_MatchesCurve(t *testing.T) {
	for level := 2; level < 20; level++ {
		threshold := XPForLevel(level)
		assert.Equal(t, level, LevelForXP(threshold))
		assert.Equal(t, level-1, LevelForXP(threshold-1))
	}
}

func TestRarity(t *testing.T) {
	assert.Less(t, RarityCommon.Rank(), RarityRare.Rank())
	assert.Less(t, RarityEpic.Rank(), RarityLegendary.Rank())

	r, err := ParseRarity(" Epic ")
	require.NoError(t, err)
	assert.Equal(t, RarityEpic, r)

	r, err = ParseRarity("")
	require.NoError(t, err)
	assert.Equal(t, RarityCommon, r)

	_, err = ParseRarity("mythic")
	assert.Error(t, err)
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 0}, Page{Limit: 1000, Offset: -1}.Normalize())
	assert.Equal(t, Page{Limit: 5, Offset: 10}, Page{Limit: 5, Offset: 10}.Normalize())
}
