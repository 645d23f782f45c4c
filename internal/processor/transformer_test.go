package processor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-cdc/internal/models"
)

func writeScript(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transform.js")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func newTransformer(t *testing.T, script string) *Transformer {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	transformer, err := NewTransformer(writeScript(t, script), logger)
	require.NoError(t, err)
	return transformer
}

func sampleNode() models.Node {
	props := models.NewPropertyMap()
	props.Set("name", "alice")
	return models.Node{ID: "7", Labels: []string{"users"}, Properties: props}
}

func TestTransformerAttachesMetadata(t *testing.T) {
	transformer := newTransformer(t, `
		(function(change) {
			return {seenOp: change.op, seenTable: change.source.table, seenId: change.element.id};
		})
	`)

	metadata, err := transformer.Apply(models.OpCreate, sampleNode(), 42, 1700000000000000000)
	require.NoError(t, err)
	require.NotNil(t, metadata)

	op, _ := metadata.Get("seenOp")
	assert.Equal(t, "i", op)
	table, _ := metadata.Get("seenTable")
	assert.Equal(t, "node", table)
	id, _ := metadata.Get("seenId")
	assert.Equal(t, "7", id)
}

func TestTransformerRejectsChange(t *testing.T) {
	transformer := newTransformer(t, `
		(function(change) {
			if (change.element.labels.indexOf("users") >= 0) {
				return null;
			}
			return {};
		})
	`)

	_, err := transformer.Apply(models.OpCreate, sampleNode(), 1, 1)
	assert.ErrorIs(t, err, ErrChangeRejected)
}

func TestTransformerNamedFunction(t *testing.T) {
	transformer := newTransformer(t, `
		function transform(change) {
			return {handled: true};
		}
	`)

	metadata, err := transformer.Apply(models.OpDelete, sampleNode(), 1, 1)
	require.NoError(t, err)
	require.NotNil(t, metadata)

	handled, ok := metadata.Get("handled")
	require.True(t, ok)
	assert.Equal(t, true, handled)
}

func TestTransformerEmptyObjectMeansNoMetadata(t *testing.T) {
	transformer := newTransformer(t, `(function(change) { return {}; })`)

	metadata, err := transformer.Apply(models.OpUpdate, sampleNode(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, metadata)
}

func TestTransformerRejectsNonObjectResult(t *testing.T) {
	transformer := newTransformer(t, `(function(change) { return "nope"; })`)

	_, err := transformer.Apply(models.OpCreate, sampleNode(), 1, 1)
	assert.Error(t, err)
}

func TestNewTransformerRejectsInvalidScript(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	_, err := NewTransformer(writeScript(t, `var x = 1;`), logger)
	assert.Error(t, err)

	_, err = NewTransformer(writeScript(t, `this is not javascript`), logger)
	assert.Error(t, err)

	_, err = NewTransformer(filepath.Join(t.TempDir(), "missing.js"), logger)
	assert.Error(t, err)
}
