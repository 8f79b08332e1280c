// Package webgpu runs accelerator convolution programs on a WebGPU device.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

// workgroupSize is the edge of the 2D workgroup every convolution shader uses.
const workgroupSize = 8

// shaderPrelude declares the bindings, uniform block and helpers shared by
// every convolution shader. The uniform layout must match encodeParams.
const shaderPrelude = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> weights: array<f32>;
@group(0) @binding(2) var<storage, read> bias: array<f32>;
@group(0) @binding(3) var<storage, read_write> output: array<f32>;

struct Params {
    batch: u32,
    in_h: u32,
    in_w: u32,
    in_c: u32,
    out_h: u32,
    out_w: u32,
    out_c: u32,
    kernel_h: u32,
    kernel_w: u32,
    stride_h: u32,
    stride_w: u32,
    dil_h: u32,
    dil_w: u32,
    pad_top: i32,
    pad_left: i32,
    multiplier: u32,
    image: u32,
    has_bias: u32,
    act: u32,
    block: u32,
    act_limit: f32,
    act_coef: f32,
    hs_alpha: f32,
    hs_beta: f32,
}
@group(0) @binding(4) var<uniform> params: Params;

fn round4(n: u32) -> u32 {
    return (n + 3u) & ~3u;
}

// RGBA images pack four channels per pixel; buffers are plain NHWC.
fn inout_index(h_dim: u32, w_dim: u32, c_dim: u32, n: u32, h: u32, w: u32, c: u32) -> u32 {
    if (params.image == 0u) {
        return ((n * h_dim + h) * w_dim + w) * c_dim + c;
    }
    let width = (round4(c_dim) / 4u) * w_dim;
    let y = n * h_dim + h;
    let x = (c / 4u) * w_dim + w;
    return (y * width + x) * 4u + c % 4u;
}

fn padded_channels(n: u32) -> u32 {
    if (params.image == 1u) {
        return round4(n);
    }
    return n;
}

fn activate(x: f32) -> f32 {
    switch params.act {
        case 1u: {
            return max(x, 0.0);
        }
        case 2u: {
            return min(max(x, 0.0), params.act_limit);
        }
        case 3u, 4u: {
            return select(x, x * params.act_coef, x < 0.0);
        }
        case 5u: {
            return clamp(params.hs_alpha * x + params.hs_beta, 0.0, 1.0);
        }
        case 6u: {
            return tanh(x);
        }
        case 7u: {
            return 1.0 / (1.0 + exp(-x));
        }
        default: {
            return x;
        }
    }
}

fn epilogue(co: u32, v: f32) -> f32 {
    var s = v;
    if (params.has_bias == 1u) {
        s = s + bias[co];
    }
    return activate(s);
}
`

// conv2dShader computes one output element per invocation.
// Dispatch: (ceil(out_w/8), ceil(out_h/8), batch*out_c).
const conv2dShader = shaderPrelude + `
@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let ow = gid.x;
    let oh = gid.y;
    let b = gid.z / params.out_c;
    let co = gid.z % params.out_c;
    if (b >= params.batch || oh >= params.out_h || ow >= params.out_w) {
        return;
    }

    let fc = padded_channels(params.in_c);
    var sum: f32 = 0.0;
    for (var kh: u32 = 0u; kh < params.kernel_h; kh = kh + 1u) {
        let ih = i32(oh * params.stride_h + kh * params.dil_h) - params.pad_top;
        if (ih < 0 || ih >= i32(params.in_h)) {
            continue;
        }
        for (var kw: u32 = 0u; kw < params.kernel_w; kw = kw + 1u) {
            let iw = i32(ow * params.stride_w + kw * params.dil_w) - params.pad_left;
            if (iw < 0 || iw >= i32(params.in_w)) {
                continue;
            }
            let w_base = ((co * params.kernel_h + kh) * params.kernel_w + kw) * fc;
            for (var ci: u32 = 0u; ci < params.in_c; ci = ci + 1u) {
                let x = input[inout_index(params.in_h, params.in_w, params.in_c, b, u32(ih), u32(iw), ci)];
                sum = sum + x * weights[w_base + ci];
            }
        }
    }
    output[inout_index(params.out_h, params.out_w, params.out_c, b, oh, ow, co)] = epilogue(co, sum);
}
`

// depthwiseShader computes one output element per invocation. Output channel
// m reads input channel m / multiplier.
const depthwiseShader = shaderPrelude + `
fn dw_index(co: u32, kh: u32, kw: u32) -> u32 {
    if (params.image == 1u) {
        return (kh * params.kernel_w + kw) * round4(params.out_c) + co;
    }
    return (co * params.kernel_h + kh) * params.kernel_w + kw;
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let ow = gid.x;
    let oh = gid.y;
    let b = gid.z / params.out_c;
    let m = gid.z % params.out_c;
    if (b >= params.batch || oh >= params.out_h || ow >= params.out_w) {
        return;
    }

    let c = m / params.multiplier;
    var sum: f32 = 0.0;
    for (var kh: u32 = 0u; kh < params.kernel_h; kh = kh + 1u) {
        let ih = i32(oh * params.stride_h + kh * params.dil_h) - params.pad_top;
        if (ih < 0 || ih >= i32(params.in_h)) {
            continue;
        }
        for (var kw: u32 = 0u; kw < params.kernel_w; kw = kw + 1u) {
            let iw = i32(ow * params.stride_w + kw * params.dil_w) - params.pad_left;
            if (iw < 0 || iw >= i32(params.in_w)) {
                continue;
            }
            let x = input[inout_index(params.in_h, params.in_w, params.in_c, b, u32(ih), u32(iw), c)];
            sum = sum + x * weights[dw_index(m, kh, kw)];
        }
    }
    output[inout_index(params.out_h, params.out_w, params.out_c, b, oh, ow, m)] = epilogue(m, sum);
}
`

// winogradShader computes one output block per invocation from a
// pre-transformed filter. matrices holds BT (t×t) followed by AT (block×t).
// Dispatch: (ceil(tiles_w/8), ceil(tiles_h/8), batch*out_c).
const winogradShader = shaderPrelude + `
@group(0) @binding(5) var<storage, read> matrices: array<f32>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let blk = params.block;
    let t = blk + 2u;
    let tiles_h = (params.out_h + blk - 1u) / blk;
    let tiles_w = (params.out_w + blk - 1u) / blk;
    let tw = gid.x;
    let th = gid.y;
    let b = gid.z / params.out_c;
    let co = gid.z % params.out_c;
    if (b >= params.batch || th >= tiles_h || tw >= tiles_w) {
        return;
    }

    let at = t * t;
    let fc = padded_channels(params.in_c);
    let ih0 = i32(th * blk) - params.pad_top;
    let iw0 = i32(tw * blk) - params.pad_left;

    var acc: array<f32, 36>;
    for (var ci: u32 = 0u; ci < params.in_c; ci = ci + 1u) {
        var d: array<f32, 36>;
        for (var i: u32 = 0u; i < t; i = i + 1u) {
            for (var j: u32 = 0u; j < t; j = j + 1u) {
                let ih = ih0 + i32(i);
                let iw = iw0 + i32(j);
                if (ih >= 0 && ih < i32(params.in_h) && iw >= 0 && iw < i32(params.in_w)) {
                    d[i * t + j] = input[inout_index(params.in_h, params.in_w, params.in_c, b, u32(ih), u32(iw), ci)];
                }
            }
        }
        var tmp: array<f32, 36>;
        for (var i: u32 = 0u; i < t; i = i + 1u) {
            for (var j: u32 = 0u; j < t; j = j + 1u) {
                var s: f32 = 0.0;
                for (var k: u32 = 0u; k < t; k = k + 1u) {
                    s = s + matrices[i * t + k] * d[k * t + j];
                }
                tmp[i * t + j] = s;
            }
        }
        for (var i: u32 = 0u; i < t; i = i + 1u) {
            for (var j: u32 = 0u; j < t; j = j + 1u) {
                var s: f32 = 0.0;
                for (var k: u32 = 0u; k < t; k = k + 1u) {
                    s = s + tmp[i * t + k] * matrices[j * t + k];
                }
                let p = i * t + j;
                acc[p] = acc[p] + weights[(p * params.out_c + co) * fc + ci] * s;
            }
        }
    }

    var rows: array<f32, 24>;
    for (var i: u32 = 0u; i < blk; i = i + 1u) {
        for (var j: u32 = 0u; j < t; j = j + 1u) {
            var s: f32 = 0.0;
            for (var k: u32 = 0u; k < t; k = k + 1u) {
                s = s + matrices[at + i * t + k] * acc[k * t + j];
            }
            rows[i * t + j] = s;
        }
    }
    for (var i: u32 = 0u; i < blk; i = i + 1u) {
        let oh = th * blk + i;
        if (oh >= params.out_h) {
            break;
        }
        for (var j: u32 = 0u; j < blk; j = j + 1u) {
            let ow = tw * blk + j;
            if (ow >= params.out_w) {
                break;
            }
            var s: f32 = 0.0;
            for (var k: u32 = 0u; k < t; k = k + 1u) {
                s = s + rows[i * t + k] * matrices[at + j * t + k];
            }
            output[inout_index(params.out_h, params.out_w, params.out_c, b, oh, ow, co)] = epilogue(co, s);
        }
    }
}
`
