package technique

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable_ListsAllSevenFamilies(t *testing.T) {
	names := Available()
	assert.Len(t, names, 7)
	assert.Contains(t, names, NameBaseline)
	assert.Contains(t, names, NameSelfReflective)
}

func TestConstruct_UnknownTechnique(t *testing.T) {
	_, err := Construct("not_a_real_technique", Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTechnique)
}

func TestConstruct_AllAvailableNamesSucceed(t *testing.T) {
	for _, name := range Available() {
		tech, err := Construct(name, Deps{Index: &fakeIndex{dim: 3}, LLM: &fakeLLM{}, Embedder: newFakeEmbedder(3)})
		require.NoError(t, err, name)
		assert.NotNil(t, tech, name)
	}
}
