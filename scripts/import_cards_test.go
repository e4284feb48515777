package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/projectcards/project-game-server/internal/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cardsCSV = `id,type,phases,title,description,costBudget,valueDelta,options,correctAnswer,flavor
charter,Action,initiation,Charter v2,Authorize the project.,3,4,,,ignored
quiz-scope,Quiz,planning,Scope,What is scope creep?,,,Uncontrolled growth;A budget line,0,
`

func TestReadCards(t *testing.T) {
	rows, err := readCards(strings.NewReader(cardsCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Charter v2", rows[0]["title"])
	assert.Equal(t, 3, rows[0]["costBudget"])
	assert.Equal(t, []any{"initiation"}, rows[0]["phases"])
	assert.NotContains(t, rows[0], "flavor")
	assert.NotContains(t, rows[0], "options")

	assert.Equal(t, []any{"Uncontrolled growth", "A budget line"}, rows[1]["options"])
	assert.Equal(t, 0, rows[1]["correctAnswer"])
}

func TestReadCardsRejectsBadInput(t *testing.T) {
	_, err := readCards(strings.NewReader("title,type\nA,Action\n"))
	assert.Error(t, err)

	_, err = readCards(strings.NewReader("id,costBudget\nx,lots\n"))
	assert.Error(t, err)
}

func TestMergeCardsProducesValidDefinition(t *testing.T) {
	doc, err := readDocument("../internal/definition/testdata/game.json")
	require.NoError(t, err)
	rows, err := readCards(strings.NewReader(cardsCSV))
	require.NoError(t, err)

	added, replaced := mergeCards(doc, rows)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, replaced)

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	def, err := definition.Parse(data, definition.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 7, def.Catalog.Len())

	charter, ok := def.Catalog.Get("charter")
	require.True(t, ok)
	assert.Equal(t, "Charter v2", charter.Title)
	assert.Equal(t, 3, charter.CostBudget)

	// The phase still requires "Charter", which no card carries any more.
	_, ok = def.Catalog.ByTitle("Charter")
	assert.False(t, ok)
}

func TestMergeCardsKeepsConditions(t *testing.T) {
	doc, err := readDocument("../internal/definition/testdata/game.json")
	require.NoError(t, err)

	mergeCards(doc, []map[string]any{{
		"id": "storm", "type": "Event", "phases": []any{"planning"},
		"title": "Big Storm", "description": "Worse than before.",
	}})

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	def, err := definition.Parse(data, definition.FormatJSON)
	require.NoError(t, err)
	storm, ok := def.Catalog.Get("storm")
	require.True(t, ok)
	assert.Equal(t, "Big Storm", storm.Title)
	assert.Len(t, storm.Conditions, 3)
}
