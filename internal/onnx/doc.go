// Package onnx is the native model runtime behind the graph package.
//
// It decodes and encodes ONNX models with protowire, compiles the graph into
// operator nodes and runs it on reference-counted tensors.
//
// Key components:
//   - ModelProto and friends: the subset of the ONNX schema the runtime reads
//   - Session: a compiled model with typed endpoints and a Run method
//   - LoadDir / Open: model directories with an optional model.yaml manifest
//   - Marshal / SaveDir: writing models back out
//
// Supported element types are float32, float64, int32, int64, uint8 and
// bool. float16 and bfloat16 initializers are widened to float32.
//
// Example usage:
//
//	s, err := onnx.LoadDir("models/simplegraph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	out, err := s.Run(map[string]*tensor.RawTensor{"input": x}, []string{"output"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer out["output"].Release()
package onnx
