package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRegistryGet(t *testing.T) {
	registry := DefaultActionRegistry("/tmp/workspace")

	t.Run("plain name", func(t *testing.T) {
		action, ok := registry.Get("checkout")
		require.True(t, ok)
		assert.Equal(t, "checkout", action.Name())
	})

	t.Run("version suffix is ignored", func(t *testing.T) {
		action, ok := registry.Get("setup-toolchain@v2")
		require.True(t, ok)
		assert.Equal(t, "setup-toolchain", action.Name())
	})

	t.Run("unknown action", func(t *testing.T) {
		_, ok := registry.Get("upload-artifact")
		assert.False(t, ok)
	})
}

func TestCheckoutAction(t *testing.T) {
	t.Run("clone then checkout ref", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{
				"repository": "https://example.com/repo.git",
				"ref":        "v1.2.0",
				"path":       "/tmp/workspace/repo",
			},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, ok(""), ok(""), ok("abc123\n")),
		}

		action := &CheckoutAction{DefaultDir: "/tmp/workspace"}
		output, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Contains(t, output, "abc123")

		require.Len(t, calls, 3)
		assert.Equal(t, "git", calls[0].name)
		assert.Equal(t, []string{"clone", "https://example.com/repo.git", "/tmp/workspace/repo"}, calls[0].args)
		assert.Equal(t, []string{"checkout", "v1.2.0"}, calls[1].args)
		assert.Equal(t, []string{"rev-parse", "HEAD"}, calls[2].args)
		assert.Equal(t, "/tmp/workspace/repo", calls[2].dir)
	})

	t.Run("shallow clone depth", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{
				"repository": "https://example.com/repo.git",
				"depth":      "1",
			},
			Dir:  "/tmp/workspace/repo",
			Exec: fakeExec(&calls, ok(""), ok("abc123\n")),
		}

		action := &CheckoutAction{DefaultDir: "/tmp/workspace"}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
		require.NotEmpty(t, calls)
		assert.Equal(t, []string{"clone", "--depth", "1", "https://example.com/repo.git", "/tmp/workspace/repo"}, calls[0].args)
	})

	t.Run("clone failure stops the action", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{"repository": "https://example.com/repo.git"},
			Dir:  "/tmp/workspace/repo",
			Exec: fakeExec(&calls, exit(128)),
		}

		action := &CheckoutAction{DefaultDir: "/tmp/workspace"}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 128, code)
		assert.Len(t, calls, 1)
	})

	t.Run("no repository only verifies existing checkout", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, ok("abc123\n")),
		}

		action := &CheckoutAction{DefaultDir: "/tmp/workspace"}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
		require.Len(t, calls, 1)
		assert.Equal(t, []string{"rev-parse", "HEAD"}, calls[0].args)
	})
}

func TestSetupToolchainAction(t *testing.T) {
	t.Run("defaults to rustup stable minimal", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, ok(""), ok("stable-x86_64-unknown-linux-gnu (default)\n")),
		}

		action := &SetupToolchainAction{}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
		require.Len(t, calls, 2)
		assert.Equal(t, "rustup", calls[0].name)
		assert.Equal(t, []string{"toolchain", "install", "stable", "--profile", "minimal"}, calls[0].args)
		assert.Equal(t, []string{"show", "active-toolchain"}, calls[1].args)
	})

	t.Run("override sets directory toolchain", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{
				"channel":  "1.75.0",
				"profile":  "default",
				"override": "true",
			},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, ok(""), ok(""), ok("1.75.0-x86_64-unknown-linux-gnu (directory override)\n")),
		}

		action := &SetupToolchainAction{}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 0, code)
		require.Len(t, calls, 3)
		assert.Equal(t, []string{"toolchain", "install", "1.75.0", "--profile", "default"}, calls[0].args)
		assert.Equal(t, []string{"override", "set", "1.75.0"}, calls[1].args)
	})

	t.Run("install failure propagates exit code", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{"channel": "nightly"},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, exit(1)),
		}

		action := &SetupToolchainAction{}
		_, code, err := action.Run(context.Background(), inv)

		require.NoError(t, err)
		assert.Equal(t, 1, code)
		assert.Len(t, calls, 1)
	})

	t.Run("mismatched active toolchain fails verification", func(t *testing.T) {
		var calls []execCall
		inv := &Invocation{
			With: map[string]string{"channel": "nightly"},
			Dir:  "/tmp/workspace",
			Exec: fakeExec(&calls, ok(""), ok("stable-x86_64-unknown-linux-gnu (default)\n")),
		}

		action := &SetupToolchainAction{}
		_, code, err := action.Run(context.Background(), inv)

		require.Error(t, err)
		assert.Equal(t, 1, code)
	})
}
