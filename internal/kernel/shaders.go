package kernel

// Built-in kernel names.
const (
	NCHWToInt8x4Buffer = "nchw_to_int8x4_buffer"
	Int8x4BufferToNCHW = "int8x4_buffer_to_nchw"
	WhereBufferFloat   = "where_buffer_float"
	WhereBufferInt32   = "where_buffer_int32"
)

// defaultLocalSize matches @workgroup_size in the shaders below.
var defaultLocalSize = [3]uint32{64, 1, 1}

func builtins() []*Info {
	return []*Info{
		{
			Name:          NCHWToInt8x4Buffer,
			Source:        nchwToInt8x4BufferShader,
			LocalSize:     defaultLocalSize,
			Bindings:      2,
			Params:        1,
			SpecConstants: 1,
		},
		{
			Name:          Int8x4BufferToNCHW,
			Source:        int8x4BufferToNCHWShader,
			LocalSize:     defaultLocalSize,
			Bindings:      2,
			Params:        1,
			SpecConstants: 1,
		},
		{
			Name:      WhereBufferFloat,
			Source:    whereShader("f32"),
			LocalSize: defaultLocalSize,
			Bindings:  4,
			Params:    4,
		},
		{
			Name:      WhereBufferInt32,
			Source:    whereShader("i32"),
			LocalSize: defaultLocalSize,
			Bindings:  4,
			Params:    4,
		},
	}
}

// metaStruct mirrors the 80-byte tensor metadata uniform written by the graph:
// WHCN sizes, WHCN strides, ndim, numel, padded numel.
const metaStruct = `
struct Meta {
    sizes: array<vec4<u32>, 2>,
    strides: array<vec4<u32>, 2>,
    ndim: u32,
    numel: u32,
    padded_numel: u32,
    pad: u32,
}

fn size_at(m: Meta, d: u32) -> u32 {
    return m.sizes[d / 4u][d % 4u];
}

fn stride_at(m: Meta, d: u32) -> u32 {
    return m.strides[d / 4u][d % 4u];
}
`

const specStruct = `
struct Spec {
    layout: i32,
    pad0: i32,
    pad1: i32,
    pad2: i32,
}
`

// nchwToInt8x4BufferShader packs an NCHW int8 staging buffer into an int8x4
// buffer. One invocation per output texel; lanes past the logical size of the
// packed dim are zero.
const nchwToInt8x4BufferShader = metaStruct + specStruct + `
@group(0) @binding(0) var<storage, read_write> t_out: array<i32>;
@group(0) @binding(1) var<storage, read> nchw_in: array<i32>;
@group(0) @binding(2) var<uniform> out_meta: Meta;
@group(0) @binding(3) var<uniform> spec: Spec;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let texel = gid.x;
    if (texel >= out_meta.padded_numel / 4u) {
        return;
    }
    let packed_dim = u32((spec.layout >> 16u) & 15);

    var tc = vec4<u32>(0u, 0u, 0u, 0u);
    var rem = texel;
    for (var d = 0u; d < 4u; d = d + 1u) {
        var ts = size_at(out_meta, d);
        if (d == packed_dim) {
            ts = (ts + 3u) / 4u;
        }
        tc[d] = rem % ts;
        rem = rem / ts;
    }

    let w = size_at(out_meta, 0u);
    let h = size_at(out_meta, 1u);
    let c = size_at(out_meta, 2u);
    var word = 0u;
    for (var lane = 0u; lane < 4u; lane = lane + 1u) {
        var ec = tc;
        ec[packed_dim] = tc[packed_dim] * 4u + lane;
        if (ec[packed_dim] < size_at(out_meta, packed_dim)) {
            let idx = ec.x + w * (ec.y + h * (ec.z + c * ec.w));
            let b = (u32(nchw_in[idx / 4u]) >> ((idx % 4u) * 8u)) & 255u;
            word = word | (b << (lane * 8u));
        }
    }
    t_out[texel] = i32(word);
}
`

// int8x4BufferToNCHWShader unpacks an int8x4 buffer into an NCHW int8 staging
// buffer. One invocation per output int32 of the staging buffer.
const int8x4BufferToNCHWShader = metaStruct + specStruct + `
@group(0) @binding(0) var<storage, read_write> nchw_out: array<i32>;
@group(0) @binding(1) var<storage, read> t_in: array<i32>;
@group(0) @binding(2) var<uniform> in_meta: Meta;
@group(0) @binding(3) var<uniform> spec: Spec;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let out_word = gid.x;
    if (out_word >= (in_meta.numel + 3u) / 4u) {
        return;
    }
    let packed_dim = u32((spec.layout >> 16u) & 15);

    var word = 0u;
    for (var lane = 0u; lane < 4u; lane = lane + 1u) {
        let idx = out_word * 4u + lane;
        if (idx < in_meta.numel) {
            var ec = vec4<u32>(0u, 0u, 0u, 0u);
            var rem = idx;
            for (var d = 0u; d < 4u; d = d + 1u) {
                ec[d] = rem % size_at(in_meta, d);
                rem = rem / size_at(in_meta, d);
            }
            var texel = 0u;
            for (var d = 0u; d < 4u; d = d + 1u) {
                var tcoord = ec[d];
                if (d == packed_dim) {
                    tcoord = tcoord / 4u;
                }
                texel = texel + tcoord * stride_at(in_meta, d);
            }
            let src_lane = ec[packed_dim] % 4u;
            let b = (u32(t_in[texel]) >> (src_lane * 8u)) & 255u;
            word = word | (b << (lane * 8u));
        }
    }
    nchw_out[out_word] = i32(word);
}
`

// whereShader selects between self and other by cond, broadcasting inputs
// whose size along a dim is 1.
func whereShader(elem string) string {
	return metaStruct + `
@group(0) @binding(0) var<storage, read_write> t_out: array<` + elem + `>;
@group(0) @binding(1) var<storage, read> t_cond: array<u32>;
@group(0) @binding(2) var<storage, read> t_self: array<` + elem + `>;
@group(0) @binding(3) var<storage, read> t_other: array<` + elem + `>;
@group(0) @binding(4) var<uniform> out_meta: Meta;
@group(0) @binding(5) var<uniform> cond_meta: Meta;
@group(0) @binding(6) var<uniform> self_meta: Meta;
@group(0) @binding(7) var<uniform> other_meta: Meta;

fn broadcast_index(m: Meta, out_idx: u32) -> u32 {
    var rem = out_idx;
    var idx = 0u;
    for (var d = 0u; d < 8u; d = d + 1u) {
        let coord = rem % size_at(out_meta, d);
        rem = rem / size_at(out_meta, d);
        if (size_at(m, d) > 1u) {
            idx = idx + coord * stride_at(m, d);
        }
    }
    return idx;
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i >= out_meta.numel) {
        return;
    }
    if (t_cond[broadcast_index(cond_meta, i)] != 0u) {
        t_out[i] = t_self[broadcast_index(self_meta, i)];
    } else {
        t_out[i] = t_other[broadcast_index(other_meta, i)];
    }
}
`
}
