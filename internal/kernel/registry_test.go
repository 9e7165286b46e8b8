package kernel

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	assert.Equal(t, []string{
		Int8x4BufferToNCHW,
		NCHWToInt8x4Buffer,
		WhereBufferFloat,
		WhereBufferInt32,
	}, r.Names())

	for _, name := range r.Names() {
		info, err := r.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, info.Name)
		assert.Equal(t, [3]uint32{64, 1, 1}, info.LocalSize)
		assert.Contains(t, info.Source, "@workgroup_size(64")
		assert.Contains(t, info.Source, "fn main(")
	}
}

func TestLookupUnknown(t *testing.T) {
	r := Default()
	_, err := r.Lookup("where_texture3d_float")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKernel))
	assert.Contains(t, err.Error(), "where_texture3d_float")

	_, err = r.Compile("missing")
	assert.True(t, errors.Is(err, ErrUnknownKernel))
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Info{Name: "copy", LocalSize: [3]uint32{64, 1, 1}}))
	assert.Error(t, r.Register(&Info{Name: "copy"}))
	assert.Error(t, r.Register(&Info{}))
	assert.Error(t, r.Register(nil))
	assert.Equal(t, []string{"copy"}, r.Names())
}
