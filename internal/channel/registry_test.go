package channel_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

func TestResolveUnknownProvider(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&fakeAdapter{key: "loop"})
	require.NoError(t, reg.Freeze("loop"))

	_, err := reg.Resolve("carrier-pigeon")
	require.Error(t, err)
	assert.True(t, errors.Is(err, channel.ErrUnknownProvider))
}

func TestResolveRegisteredIsDeterministic(t *testing.T) {
	t.Parallel()

	loop := &fakeAdapter{key: "loop"}
	reg := channel.NewRegistry()
	reg.MustRegister(loop)
	reg.MustRegister(&fakeAdapter{key: "twilio"})
	require.NoError(t, reg.Freeze("loop"))

	for i := 0; i < 3; i++ {
		got, err := reg.Resolve(" LOOP ")
		require.NoError(t, err)
		assert.Same(t, loop, got)
	}
	active, err := reg.ResolveActive()
	require.NoError(t, err)
	assert.Same(t, loop, active)
	assert.Equal(t, []channel.ProviderKey{"loop", "twilio"}, reg.Types())
}

func TestRegisterRejectsDuplicatesAndNil(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	require.NoError(t, reg.Register(&fakeAdapter{key: "loop"}))
	assert.Error(t, reg.Register(&fakeAdapter{key: "Loop"}))
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&fakeAdapter{key: "  "}))
}

func TestFreezeMakesRegistryReadOnly(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&fakeAdapter{key: "loop"})
	require.NoError(t, reg.Freeze("loop"))
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register(&fakeAdapter{key: "twilio"}), channel.ErrRegistryFrozen)
	assert.ErrorIs(t, reg.Freeze("loop"), channel.ErrRegistryFrozen)
}

func TestFreezeRequiresRegisteredActive(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&fakeAdapter{key: "loop"})
	err := reg.Freeze("twilio")
	assert.ErrorIs(t, err, channel.ErrUnknownProvider)
	assert.False(t, reg.Frozen())

	_, err = reg.ResolveActive()
	assert.ErrorIs(t, err, channel.ErrUnknownProvider)
}

func TestConcurrentResolveAfterFreeze(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&fakeAdapter{key: "loop"})
	require.NoError(t, reg.Freeze("loop"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Resolve("loop"); err != nil {
				t.Errorf("resolve: %v", err)
			}
			_ = reg.ListDescriptors()
		}()
	}
	wg.Wait()
}

func TestGetDescriptor(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&fakeAdapter{key: "loop"})
	desc, ok := reg.GetDescriptor("loop")
	require.True(t, ok)
	assert.Equal(t, channel.ProviderKey("loop"), desc.Type)
	_, ok = reg.GetDescriptor("nope")
	assert.False(t, ok)
}
