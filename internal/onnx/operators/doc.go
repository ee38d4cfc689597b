// Package operators implements ONNX operators on native raw tensors.
//
// Every handler returns freshly referenced tensors: either new buffers or
// views taken with Clone/Reshaped. The caller owns each output and releases
// it exactly once, whether or not it shares memory with an input.
package operators
