package onnx

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/born-ml/dnn/internal/onnx/operators"
)

const (
	// ManifestFile is the optional descriptor inside a model directory.
	ManifestFile = "model.yaml"
	// DefaultModelFile is the model file name used when no manifest names one.
	DefaultModelFile = "model.onnx"
)

// ErrUnsupportedOperator is returned by strict loads that meet an operator
// with no registered handler.
var ErrUnsupportedOperator = errors.New("unsupported operator")

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// Strict fails the load on operators without a handler. Otherwise the
	// failure surfaces on the first Run.
	Strict bool

	// CustomOps provides extra or replacement operator handlers.
	CustomOps map[string]operators.OpHandler
}

// DefaultLoadOptions returns strict loading with the built-in operators.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Strict: true}
}

// Manifest describes a model directory.
type Manifest struct {
	// Model is the model file name relative to the directory.
	Model string `json:"model,omitempty"`
	// Strict overrides LoadOptions.Strict when set.
	Strict *bool `json:"strict,omitempty"`
	// Metadata is merged over the model's own metadata.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ReadManifest reads dir/model.yaml. A missing manifest yields the zero value.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, errors.Wrap(err, "read manifest")
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, errors.Wrapf(err, "parse %s", ManifestFile)
	}
	return m, nil
}

// Open loads a model from a directory (see LoadDir) or a single model file.
func Open(path string, opts ...LoadOptions) (*Session, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "open model")
	}
	if info.IsDir() {
		return LoadDir(path, opts...)
	}
	return Load(path, opts...)
}

// LoadDir loads the model stored in dir. The model file is named by the
// manifest, defaults to model.onnx, and otherwise must be the only .onnx file.
func LoadDir(dir string, opts ...LoadOptions) (*Session, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.Strict != nil {
		opt.Strict = *manifest.Strict
	}

	file, err := modelFile(dir, manifest.Model)
	if err != nil {
		return nil, err
	}
	session, err := Load(file, opt)
	if err != nil {
		return nil, err
	}
	for k, v := range manifest.Metadata {
		session.metadata[k] = v
	}
	return session, nil
}

func modelFile(dir, name string) (string, error) {
	if name != "" {
		return filepath.Join(dir, name), nil
	}
	def := filepath.Join(dir, DefaultModelFile)
	if _, err := os.Stat(def); err == nil {
		return def, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.onnx"))
	if err != nil {
		return "", errors.Wrap(err, "find model file")
	}
	switch len(matches) {
	case 0:
		return "", errors.Errorf("no .onnx model in %s", dir)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", errors.Errorf("%d .onnx models in %s and no %s naming one: %v", len(matches), dir, ManifestFile, matches)
	}
}

// Load loads an ONNX model file and prepares it for inference.
func Load(path string, opts ...LoadOptions) (*Session, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	proto, err := ParseFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return LoadProto(proto, opt)
}

// LoadBytes loads an ONNX model from its encoding.
func LoadBytes(data []byte, opts ...LoadOptions) (*Session, error) {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	proto, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return LoadProto(proto, opt)
}

// LoadProto compiles a decoded model.
func LoadProto(proto *ModelProto, opt LoadOptions) (*Session, error) {
	registry := operators.NewRegistry()
	for opType, handler := range opt.CustomOps {
		registry.Register(opType, handler)
	}

	if opt.Strict {
		if err := validateOperators(proto.Graph, registry); err != nil {
			return nil, err
		}
	}

	s := &Session{proto: proto, registry: registry}
	if err := s.compile(); err != nil {
		s.release()
		return nil, errors.Wrap(err, "compile model")
	}
	return s, nil
}

// validateOperators checks that every node has a handler.
func validateOperators(graph *GraphProto, registry *operators.Registry) error {
	if graph == nil {
		return errors.New("model has no graph")
	}
	seen := make(map[string]bool)
	var unsupported []string
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Get(op); !ok && !seen[op] {
			seen[op] = true
			unsupported = append(unsupported, op)
		}
	}
	if len(unsupported) > 0 {
		return errors.Wrapf(ErrUnsupportedOperator, "%v", unsupported)
	}
	return nil
}

// SaveDir writes the model and its manifest into dir, creating it if needed.
func SaveDir(dir string, model *ModelProto, manifest Manifest) error {
	data, err := Marshal(model)
	if err != nil {
		return err
	}
	if manifest.Model == "" {
		manifest.Model = DefaultModelFile
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "create model dir")
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.Model), data, 0o600); err != nil {
		return errors.Wrap(err, "write model")
	}
	desc, err := yaml.Marshal(manifest)
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(dir, ManifestFile), desc, 0o600), "write manifest")
}

// ListSupportedOps returns all built-in operators.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
