package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-hq/core/pkg/models"
)

func makeTrigger(keyword string, matchType models.MatchType) models.Trigger {
	return models.Trigger{
		ID:        "trigger-" + keyword + "-" + string(matchType),
		BotID:     "bot-1",
		Keyword:   keyword,
		MatchType: matchType,
		IsActive:  true,
		FlowID:    "flow-1",
		Scope:     models.ScopeIncoming,
	}
}

func TestExactMatchCaseInsensitive(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hello", models.MatchTypeExact)}
	result := Find("HELLO", triggers)
	require.NotNil(t, result)
	assert.Equal(t, "hello", result.Keyword)
}

func TestExactMatchWithWhitespace(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hello", models.MatchTypeExact)}
	assert.NotNil(t, Find("  hello  ", triggers))
}

func TestExactNoPartialMatch(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hello", models.MatchTypeExact)}
	assert.Nil(t, Find("hello world", triggers))
}

func TestContainsMatch(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("promo", models.MatchTypeContains)}
	assert.NotNil(t, Find("check out this promo code", triggers))
}

func TestContainsCaseInsensitive(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("PROMO", models.MatchTypeContains)}
	assert.NotNil(t, Find("check out this promo code", triggers))
}

func TestExactHasPriorityOverContains(t *testing.T) {
	triggers := []models.Trigger{
		makeTrigger("hello", models.MatchTypeContains),
		makeTrigger("hello", models.MatchTypeExact),
	}
	result := Find("hello", triggers)
	require.NotNil(t, result)
	assert.Equal(t, models.MatchTypeExact, result.MatchType)
}

func TestFirstTriggerWinsWithinTier(t *testing.T) {
	triggers := []models.Trigger{
		makeTrigger("promo", models.MatchTypeContains),
		makeTrigger("code", models.MatchTypeContains),
	}
	result := Find("promo code", triggers)
	require.NotNil(t, result)
	assert.Equal(t, "promo", result.Keyword)
}

func TestRegexTriggersAreIgnored(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hel+o", models.MatchTypeRegex)}
	assert.Nil(t, Find("hello", triggers))
}

func TestEmptyContentReturnsNil(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hello", models.MatchTypeExact)}
	assert.Nil(t, Find("", triggers))
}

func TestWhitespaceOnlyReturnsNil(t *testing.T) {
	triggers := []models.Trigger{makeTrigger("hello", models.MatchTypeExact)}
	assert.Nil(t, Find("   ", triggers))
}

func TestNoTriggersReturnsNil(t *testing.T) {
	assert.Nil(t, Find("hello", nil))
}
