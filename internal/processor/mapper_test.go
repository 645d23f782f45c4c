package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-cdc/internal/config"
	"graph-cdc/internal/models"
)

func TestMapRowToNode(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{IDColumn: "id"})

	element, err := mapper.MapRow("app", "users",
		[]string{"id", "name", "age"},
		[]interface{}{int64(7), "alice", int64(30)})
	require.NoError(t, err)

	node, ok := element.(models.Node)
	require.True(t, ok)
	assert.Equal(t, "7", node.ID)
	assert.Equal(t, []string{"users"}, node.Labels)
	assert.Equal(t, []string{"name", "age"}, node.Properties.Keys())

	name, _ := node.Properties.Get("name")
	assert.Equal(t, "alice", name)
}

func TestMapRowMissingIDColumn(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{IDColumn: "id"})

	_, err := mapper.MapRow("app", "users",
		[]string{"name"}, []interface{}{"alice"})
	assert.Error(t, err)
}

func TestMapRowToRelation(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{
		IDColumn: "id",
		Relationships: []config.RelationshipRule{{
			Database:    "social",
			Table:       "follows",
			Label:       "FOLLOWS",
			StartColumn: "follower_id",
			EndColumn:   "followee_id",
		}},
	})

	element, err := mapper.MapRow("social", "follows",
		[]string{"id", "follower_id", "followee_id", "since"},
		[]interface{}{int64(1), int64(2), int64(3), "2024-01-01"})
	require.NoError(t, err)

	rel, ok := element.(models.Relation)
	require.True(t, ok)
	assert.Equal(t, "1", rel.ID)
	assert.Equal(t, []string{"FOLLOWS"}, rel.Labels)
	assert.Equal(t, "2", rel.StartID)
	assert.Equal(t, "3", rel.EndID)
	assert.Equal(t, []string{"since"}, rel.Properties.Keys())
}

func TestMapRowRelationWithoutSurrogateKey(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{
		IDColumn: "id",
		Relationships: []config.RelationshipRule{{
			Table:       "follows",
			StartColumn: "follower_id",
			EndColumn:   "followee_id",
		}},
	})

	element, err := mapper.MapRow("social", "follows",
		[]string{"follower_id", "followee_id"},
		[]interface{}{int64(2), int64(3)})
	require.NoError(t, err)

	rel := element.(models.Relation)
	assert.Equal(t, "2-3", rel.ID)
	assert.Equal(t, []string{"follows"}, rel.Labels)
}

func TestMapRowRelationMissingEndpointColumns(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{
		IDColumn: "id",
		Relationships: []config.RelationshipRule{{
			Table:       "follows",
			StartColumn: "follower_id",
			EndColumn:   "followee_id",
		}},
	})

	_, err := mapper.MapRow("social", "follows",
		[]string{"id", "follower_id"}, []interface{}{int64(1), int64(2)})
	assert.Error(t, err)
}

func TestRelationshipRuleScopedToDatabase(t *testing.T) {
	mapper := NewMapper(config.GraphConfig{
		IDColumn: "id",
		Relationships: []config.RelationshipRule{{
			Database:    "social",
			Table:       "follows",
			StartColumn: "follower_id",
			EndColumn:   "followee_id",
		}},
	})

	// Same table name in another database maps to a node
	element, err := mapper.MapRow("analytics", "follows",
		[]string{"id", "count"}, []interface{}{int64(1), int64(10)})
	require.NoError(t, err)
	assert.IsType(t, models.Node{}, element)
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "42", formatID(int64(42)))
	assert.Equal(t, "abc", formatID("abc"))
	assert.Equal(t, "xyz", formatID([]byte("xyz")))
	assert.Equal(t, "", formatID(nil))
}
