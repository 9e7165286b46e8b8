package device

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtentGroups(t *testing.T) {
	tests := []struct {
		name   string
		global Extent
		local  Extent
		want   Extent
	}{
		{"exact", Ext(128, 1, 1), Ext(64, 1, 1), Ext(2, 1, 1)},
		{"partial", Ext(15, 1, 1), Ext(64, 1, 1), Ext(1, 1, 1)},
		{"2d", Ext(17, 9, 1), Ext(8, 8, 1), Ext(3, 2, 1)},
		{"3d", Ext(4, 4, 9), Ext(4, 4, 4), Ext(1, 1, 3)},
		{"zero local axis", Ext(4, 4, 4), Ext(4, 0, 4), Ext(1, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.global.Groups(tt.local))
		})
	}
}

func TestExtentVolume(t *testing.T) {
	assert.Equal(t, uint64(64), Ext(4, 4, 4).Volume())
	assert.Equal(t, uint64(1<<32)*2, Ext(1<<16, 1<<16, 2).Volume())
	assert.Equal(t, uint32(7), Ext(5, 6, 7).At(2))
	assert.Equal(t, "(5, 6, 7)", Ext(5, 6, 7).String())
}

func TestEncodeSpecConstants(t *testing.T) {
	assert.Empty(t, EncodeSpecConstants(nil))

	buf := EncodeSpecConstants([]SpecVar{IntSpec(-2), UintSpec(7)})
	require.Len(t, buf, 16)
	assert.Equal(t, uint32(0xfffffffe), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[4:]))
	assert.Equal(t, int32(-2), IntSpec(-2).Int())

	assert.Len(t, EncodeSpecConstants(make([]SpecVar, 5)), 32)
}

func TestMetaEncodeDecode(t *testing.T) {
	m := Meta{NDim: 3, Numel: 30, PaddedNumel: 40}
	for i := range m.Sizes {
		m.Sizes[i] = 1
	}
	m.Sizes[0], m.Sizes[1], m.Sizes[2] = 5, 3, 2
	m.Strides[0], m.Strides[1], m.Strides[2] = 1, 5, 15

	buf := m.Encode()
	require.Len(t, buf, MetaSize)
	assert.Zero(t, MetaSize%16)

	got, err := DecodeMeta(buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, []int{5, 3, 2, 1}, got.SizesInt(4))
	assert.Equal(t, []int{1, 5, 15}, got.StridesInt(3))

	_, err = DecodeMeta(buf[:MetaSize-4])
	assert.Error(t, err)
}

func TestAccessModeString(t *testing.T) {
	assert.Equal(t, "read", Read.String())
	assert.Equal(t, "write", Write.String())
	assert.Equal(t, "read_write", ReadWrite.String())
}
