package operations_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finset/internal/operations"
	"finset/internal/operations/testutil"
)

func ids(steps []operations.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.ID()
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	registry := operations.NewRegistry()
	assert.Equal(t, 0, registry.Count())
	assert.NotNil(t, registry.List())

	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, "fetch")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, "normalize", "fetch")))

	assert.Equal(t, 2, registry.Count())
	assert.True(t, registry.Has("fetch"))
	assert.Equal(t, []string{"fetch", "normalize"}, registry.ListIDs())

	got, err := registry.Get("normalize")
	require.NoError(t, err)
	assert.Equal(t, "normalize", got.ID())

	_, err = registry.Get("label")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistryRegisterErrors(t *testing.T) {
	registry := operations.NewRegistry()

	assert.ErrorContains(t, registry.Register(nil), "nil step")
	assert.ErrorContains(t, registry.Register(&testutil.MockStage{}), "ID cannot be empty")

	step := testutil.CreateSuccessfulStage(nil, "dup")
	require.NoError(t, registry.Register(step))
	assert.ErrorContains(t, registry.Register(step), "already registered")
}

func TestRegistryUnregister(t *testing.T) {
	registry := operations.NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, id)))
	}

	require.NoError(t, registry.Unregister("b"))
	assert.Equal(t, []string{"a", "c"}, registry.ListIDs())
	assert.ErrorContains(t, registry.Unregister("b"), "not found")
}

func TestRegistryDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*testutil.MockStage
		want    []string
		wantErr string
	}{
		{
			name: "pipeline registered out of order",
			steps: []*testutil.MockStage{
				testutil.CreateSuccessfulStage(nil, "audit", "label"),
				testutil.CreateSuccessfulStage(nil, "export", "label"),
				testutil.CreateSuccessfulStage(nil, "label", "assemble"),
				testutil.CreateSuccessfulStage(nil, "assemble", "normalize"),
				testutil.CreateSuccessfulStage(nil, "normalize", "fetch"),
				testutil.CreateSuccessfulStage(nil, "fetch"),
			},
			want: []string{"fetch", "normalize", "assemble", "label", "audit", "export"},
		},
		{
			name: "independent steps keep registration order",
			steps: []*testutil.MockStage{
				testutil.CreateSuccessfulStage(nil, "z"),
				testutil.CreateSuccessfulStage(nil, "a"),
				testutil.CreateSuccessfulStage(nil, "m"),
			},
			want: []string{"z", "a", "m"},
		},
		{
			name: "missing dependency",
			steps: []*testutil.MockStage{
				testutil.CreateSuccessfulStage(nil, "label", "assemble"),
			},
			wantErr: "non-existent",
		},
		{
			name: "cycle",
			steps: []*testutil.MockStage{
				testutil.CreateSuccessfulStage(nil, "a", "b"),
				testutil.CreateSuccessfulStage(nil, "b", "a"),
			},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := operations.NewRegistry()
			for _, s := range tt.steps {
				require.NoError(t, registry.Register(s))
			}

			ordered, err := registry.GetDependencyOrder()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Error(t, registry.ValidateDependencies())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(ordered))
			assert.NoError(t, registry.ValidateDependencies())
		})
	}
}

func TestRegistryDependents(t *testing.T) {
	registry := operations.NewRegistry()
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, "label")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, "export", "label")))
	require.NoError(t, registry.Register(testutil.CreateSuccessfulStage(nil, "audit", "label")))

	assert.ElementsMatch(t, []string{"export", "audit"}, ids(registry.GetDependents("label")))

	clone := registry.Clone()
	registry.Clear()
	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, []string{"label", "export", "audit"}, clone.ListIDs())
}
