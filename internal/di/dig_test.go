package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

// test fixtures standing in for real services

type runStore struct {
	Table string
}

type amiLookup struct {
	ID string
}

type deployer struct {
	Store  *runStore
	Lookup *amiLookup
	Env    string
}

// newContainer builds a container without the core providers so tests do not
// need AWS credentials or environment variables.
func newContainer(t *testing.T, env string, providers ...any) Container {
	t.Helper()

	container := dig.New()
	require.NoError(t, container.Provide(func() string { return env }))
	for _, provider := range providers {
		require.NoError(t, container.Provide(provider))
	}
	return container
}

func TestMustGet(t *testing.T) {
	t.Run("retrieves dependency", func(t *testing.T) {
		container := newContainer(t, "dev",
			func() *runStore { return &runStore{Table: "dev-cloudigrade-deployer-runs"} },
		)

		store := MustGet[*runStore](container)
		require.NotNil(t, store)
		assert.Equal(t, "dev-cloudigrade-deployer-runs", store.Table)
	})

	t.Run("panics when dependency not found", func(t *testing.T) {
		container := newContainer(t, "dev")

		assert.Panics(t, func() {
			_ = MustGet[*runStore](container)
		})
	})
}

func TestNew_ProvidesEnvironment(t *testing.T) {
	container := newContainer(t, "stage")

	var env string
	err := container.Invoke(func(e string) { env = e })
	require.NoError(t, err)
	assert.Equal(t, "stage", env)
}

func TestWithProviders(t *testing.T) {
	t.Run("resolves nested dependencies", func(t *testing.T) {
		container := newContainer(t, "prod",
			func() *runStore { return &runStore{Table: "prod-runs"} },
			func() *amiLookup { return &amiLookup{ID: "ami-0123456789abcdef0"} },
			func(store *runStore, lookup *amiLookup, env string) *deployer {
				return &deployer{Store: store, Lookup: lookup, Env: env}
			},
		)

		d := MustGet[*deployer](container)
		assert.Equal(t, "prod-runs", d.Store.Table)
		assert.Equal(t, "ami-0123456789abcdef0", d.Lookup.ID)
		assert.Equal(t, "prod", d.Env)
	})

	t.Run("rejects duplicate providers", func(t *testing.T) {
		container := dig.New()
		require.NoError(t, container.Provide(func() *runStore { return &runStore{} }))
		assert.Error(t, container.Provide(func() *runStore { return &runStore{} }))
	})

	t.Run("options accumulate providers", func(t *testing.T) {
		var o options
		WithProviders(func() *runStore { return &runStore{} })(&o)
		WithProviders(func() *amiLookup { return &amiLookup{} })(&o)
		assert.Len(t, o.providers, 2)
	})
}

func TestContainerInterface(t *testing.T) {
	var _ Container = (*dig.Container)(nil)
}
