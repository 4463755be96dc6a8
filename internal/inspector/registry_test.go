package inspector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryResolvesRegisteredNames(t *testing.T) {
	reg := DefaultRegistry()

	for _, want := range defaultSpecs {
		got, err := reg.Resolve(want.Filename)
		require.NoError(t, err, want.Filename)
		assert.Equal(t, want, got)
	}
}

func TestResolveCrashDumpPrefix(t *testing.T) {
	reg := DefaultRegistry()

	for _, name := range []string{"core-1234", "core-kano-updater.dump", "core-"} {
		spec, err := reg.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, KindBinary, spec.Kind)
		assert.Equal(t, DetectBinary, spec.Detection)
	}
}

func TestResolveExactMatchWinsOverPrefix(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Spec{Filename: "core-info.txt", Kind: KindCPUInfo}))

	spec, err := reg.Resolve("core-info.txt")
	require.NoError(t, err)
	assert.Equal(t, KindCPUInfo, spec.Kind)
}

func TestResolveUnregistered(t *testing.T) {
	reg := DefaultRegistry()

	for _, name := range []string{"unknown.txt", "Dmesg.txt", "dmesg.txt.bak", "xcore-1"} {
		_, err := reg.Resolve(name)
		require.Error(t, err, name)

		var ue *UnregisteredFileTypeError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, name, ue.Filename)
		assert.ErrorIs(t, err, ErrUnregisteredFileType)
	}
}

func TestRegisterValidates(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(Spec{Filename: "", Kind: KindDmesg}))
	assert.Error(t, reg.Register(Spec{Filename: "x.txt", Kind: Kind(999)}))
	assert.False(t, reg.Has("x.txt"))
}

func TestRegistryListSorted(t *testing.T) {
	list := DefaultRegistry().List()
	require.Len(t, list, len(defaultSpecs))
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Filename, list[i].Filename)
	}
}

func TestEveryKindConstructs(t *testing.T) {
	for kind := range kindNames {
		insp, err := New(kind, Deps{})
		require.NoError(t, err, kind.String())
		assert.NotNil(t, insp)
	}

	_, err := New(Kind(0), Deps{})
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("HdmiInfo")
	require.NoError(t, err)
	assert.Equal(t, KindHdmiInfo, k)
	assert.Equal(t, "HdmiInfo", k.String())

	_, err = ParseKind("hdmiinfo")
	assert.Error(t, err)
}
