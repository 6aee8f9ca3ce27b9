package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"wavedec/common"
	"wavedec/diag"
	"wavedec/trace"
)

// InstanceSpec is one decoder instance's configuration: the registered kind
// name plus its parameters.
type InstanceSpec struct {
	Kind   string
	Params Params
}

// ParseSpec parses the JSON instance-spec form:
//
//	{"rx_bus": {"cls": "AXIStream", "filter": "core.rx", "name_tlast": "tlast"}}
//
// Every key except "cls" is passed through as a parameter.
func ParseSpec(data []byte) (map[string]InstanceSpec, error) {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoder spec: %w", err)
	}
	return specFromRaw(raw)
}

// LoadSpecFile loads instance specs from a file, selecting the format by
// extension: .json, .yaml/.yml or .toml. All formats share the JSON shape.
func LoadSpecFile(path string) (map[string]InstanceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]map[string]any
	switch ext := filepath.Ext(path); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return specFromRaw(raw)
}

func specFromRaw(raw map[string]map[string]any) (map[string]InstanceSpec, error) {
	specs := make(map[string]InstanceSpec, len(raw))
	for name, obj := range raw {
		spec := InstanceSpec{Params: make(Params, len(obj))}
		for k, v := range obj {
			if k == "cls" {
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("instance %q: cls must be a string", name)
				}
				spec.Kind = s
				continue
			}
			spec.Params[k] = v
		}
		specs[name] = spec
	}
	return specs, nil
}

// Build constructs every configured instance against the store. A failing
// instance yields a diagnostic and does not affect its siblings; the
// returned map holds the instances that constructed cleanly, the slice the
// per-instance construction diagnostics. Construction progress goes to log;
// a nil log discards it.
func Build(reg *Registry, store *trace.Store, specs map[string]InstanceSpec, log common.Logger) (map[string]Instance, []diag.Diagnostic) {
	if log == nil {
		log = common.NewNoOpLogger()
	}
	instances := make(map[string]Instance, len(specs))
	var diags []diag.Diagnostic

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		if spec.Kind == "" {
			diags = append(diags, diag.New(diag.MissingParameter, name, `missing "cls" entry`))
			continue
		}
		inst, err := reg.Construct(spec.Kind, name, spec.Params, store)
		if err != nil {
			log.Logf(common.SeverityWarning, "instance %s did not construct: %v", name, err)
			diags = append(diags, constructionDiag(name, err))
			continue
		}
		log.Logf(common.SeverityDebug, "constructed instance %s kind %s", name, spec.Kind)
		instances[name] = inst
	}
	return instances, diags
}

// constructionDiag maps a construction error onto its diagnostic kind.
func constructionDiag(name string, err error) diag.Diagnostic {
	var missing *MissingParameterError
	switch {
	case errors.Is(err, ErrUnknownDecoderKind):
		return diag.New(diag.UnknownDecoderKind, name, err.Error())
	case errors.As(err, &missing):
		return diag.New(diag.MissingParameter, name, err.Error())
	case errors.Is(err, trace.ErrAmbiguousPattern):
		return diag.New(diag.AmbiguousPattern, name, err.Error())
	case errors.Is(err, trace.ErrSignalNotFound):
		return diag.New(diag.SignalNotFound, name, err.Error())
	default:
		return diag.New(diag.InvalidParameter, name, err.Error())
	}
}
