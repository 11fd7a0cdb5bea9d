// Package storetest provides contract tests for [environment.PreferenceStore]
// implementations.
package storetest

import (
	"context"
	"testing"

	"esign-orchestrator/core/environment"
)

// Factory creates a fresh [environment.PreferenceStore] for each test invocation.
type Factory func(t *testing.T) environment.PreferenceStore

// Run exercises the [environment.PreferenceStore] contract.
func Run(t *testing.T, factory Factory) {
	t.Run("EmptyLoad", func(t *testing.T) {
		store := factory(t)
		got, err := store.Load(context.Background())
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !got.IsZero() {
			t.Errorf("Load on empty store = %+v, want zero preference", got)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()
		want := environment.Preference{Target: "production", BaseURL: environment.DefaultProductionURL}

		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != want {
			t.Errorf("Load = %+v, want %+v", got, want)
		}
	})

	t.Run("SaveOverwritesBothFields", func(t *testing.T) {
		store := factory(t)
		ctx := context.Background()

		if err := store.Save(ctx, environment.Preference{Target: "production", BaseURL: environment.DefaultProductionURL}); err != nil {
			t.Fatalf("first Save: %v", err)
		}
		want := environment.Preference{Target: "sandbox", BaseURL: environment.DefaultSandboxURL}
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("second Save: %v", err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got != want {
			t.Errorf("Load = %+v, want %+v", got, want)
		}
	})
}
