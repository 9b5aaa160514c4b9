package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "exchange listed major on",
		normalizeTitle("Listed on Major Exchange, 2026-04-12!"))
	assert.Equal(t, "tokens unlock",
		normalizeTitle("Unlock: 150M tokens ($45M)"))
	assert.Equal(t, normalizeTitle("upgrade mainnet activates"),
		normalizeTitle("Mainnet upgrade activates"))
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, titleSimilarity("Mainnet launch", "launch mainnet"))
	assert.Equal(t, 0.0, titleSimilarity("", "anything"))
	assert.InDelta(t, 0.75,
		titleSimilarity("halving block reached", "halving block reached today"), 1e-9)
	assert.Less(t,
		titleSimilarity("token burn scheduled", "governance vote opens"), 0.3)
}
