package decoder

import (
	"errors"
	"fmt"
	"sort"

	"wavedec/sample"
	"wavedec/stream"
	"wavedec/tlp"
	"wavedec/trace"
)

// Registry errors.
var (
	ErrUnknownDecoderKind = errors.New("unknown decoder kind")
	ErrKindRegistered     = errors.New("decoder kind already registered")
)

// MissingParameterError names a required parameter an instance's
// configuration omitted.
type MissingParameterError struct {
	Instance string
	Field    string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("instance %q: missing required parameter %q", e.Instance, e.Field)
}

// Params carries one instance's configuration values, as decoded from a
// JSON/YAML/TOML object.
type Params map[string]any

// busParamKeys are the parameters shared by the stream bus kinds.
var busParamKeys = []string{
	"filter", "clock", "edge",
	"name_tvalid", "name_tready", "name_tlast", "name_tdata", "name_tkeep",
	"name_sop", "name_eop", "byte_order",
}

// checkKeys rejects parameters outside the kind's known set, so a misspelled
// role override fails construction instead of silently decoding with the
// default.
func (p Params) checkKeys(instance string, allowed []string) error {
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	var bad []string
	for k := range p {
		if !known[k] {
			bad = append(bad, k)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return fmt.Errorf("instance %q: unknown parameter %q", instance, bad[0])
}

// str reads an optional string parameter.
func (p Params) str(key, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q: want string, got %T", key, v)
	}
	return s, nil
}

// Constructor builds a decoder instance from its parameters.
type Constructor func(name string, p Params, store *trace.Store) (Instance, error)

// Registry maps decoder kind names to constructors. The default registry is
// process-wide state built once from a static table; nothing registers into
// it as a side effect elsewhere.
type Registry struct {
	kinds map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Constructor)}
}

var defaultRegistry = NewRegistry()

func init() {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(defaultRegistry.Register("AXIStream", newAXIStreamInstance))
	must(defaultRegistry.Register("AvalonStream", newAvalonStreamInstance))
	must(defaultRegistry.Register("AXIStreamTLP", newAXIStreamTLPInstance))
}

// DefaultRegistry returns the registry holding the built-in decoder kinds.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds a kind. Re-registering a name fails with ErrKindRegistered.
func (r *Registry) Register(kind string, c Constructor) error {
	if c == nil {
		return fmt.Errorf("kind %q: nil constructor", kind)
	}
	if _, exists := r.kinds[kind]; exists {
		return fmt.Errorf("%w: %q", ErrKindRegistered, kind)
	}
	r.kinds[kind] = c
	return nil
}

// Kinds lists registered kind names, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Construct builds a named instance of a kind over the store. Failures are
// fatal to this one instance only.
func (r *Registry) Construct(kind, name string, p Params, store *trace.Store) (Instance, error) {
	c, ok := r.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q (instance %q)", ErrUnknownDecoderKind, kind, name)
	}
	return c(name, p, store)
}

// busConfig translates shared bus parameters into a stream.Config.
func busConfig(name string, p Params) (stream.Config, error) {
	cfg := stream.Config{Name: name}

	filter, err := p.str("filter", "")
	if err != nil {
		return cfg, fmt.Errorf("instance %q: %w", name, err)
	}
	if filter == "" {
		return cfg, &MissingParameterError{Instance: name, Field: "filter"}
	}
	cfg.Filter = filter

	if cfg.Clock, err = p.str("clock", ""); err != nil {
		return cfg, fmt.Errorf("instance %q: %w", name, err)
	}
	edgeName, err := p.str("edge", "")
	if err != nil {
		return cfg, fmt.Errorf("instance %q: %w", name, err)
	}
	if cfg.Edge, err = sample.ParseEdge(edgeName); err != nil {
		return cfg, fmt.Errorf("instance %q: %w", name, err)
	}

	roles := []struct {
		key string
		dst *string
	}{
		{"name_tvalid", &cfg.Valid},
		{"name_tready", &cfg.Ready},
		{"name_tlast", &cfg.Last},
		{"name_tdata", &cfg.Data},
		{"name_tkeep", &cfg.Keep},
		{"name_sop", &cfg.Sop},
		{"name_eop", &cfg.Eop},
	}
	for _, role := range roles {
		if *role.dst, err = p.str(role.key, ""); err != nil {
			return cfg, fmt.Errorf("instance %q: %w", name, err)
		}
	}

	order, err := p.str("byte_order", "")
	if err != nil {
		return cfg, fmt.Errorf("instance %q: %w", name, err)
	}
	switch order {
	case "", "lane", "lsb":
		cfg.Composer = stream.LaneComposer{}
	case "word", "msb":
		cfg.Composer = stream.WordComposer{}
	default:
		return cfg, fmt.Errorf("instance %q: invalid byte_order %q", name, order)
	}
	return cfg, nil
}

func newAXIStreamInstance(name string, p Params, store *trace.Store) (Instance, error) {
	if err := p.checkKeys(name, busParamKeys); err != nil {
		return nil, err
	}
	cfg, err := busConfig(name, p)
	if err != nil {
		return nil, err
	}
	d, err := stream.NewAXIStream(store, cfg)
	if err != nil {
		return nil, err
	}
	return &packetInstance{src: d}, nil
}

func newAvalonStreamInstance(name string, p Params, store *trace.Store) (Instance, error) {
	if err := p.checkKeys(name, busParamKeys); err != nil {
		return nil, err
	}
	cfg, err := busConfig(name, p)
	if err != nil {
		return nil, err
	}
	d, err := stream.NewAvalonStream(store, cfg)
	if err != nil {
		return nil, err
	}
	return &packetInstance{src: d}, nil
}

func newAXIStreamTLPInstance(name string, p Params, store *trace.Store) (Instance, error) {
	if err := p.checkKeys(name, append(append([]string(nil), busParamKeys...), "variant")); err != nil {
		return nil, err
	}
	cfg, err := busConfig(name, p)
	if err != nil {
		return nil, err
	}
	bus, err := stream.NewAXIStream(store, cfg)
	if err != nil {
		return nil, err
	}

	variantName, err := p.str("variant", "")
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", name, err)
	}
	variant, err := tlp.ParseVariant(variantName)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", name, err)
	}

	dataName := cfg.Data
	if dataName == "" {
		dataName = "tdata"
	}
	width, err := dataWidth(store, cfg.Filter, dataName)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", name, err)
	}
	dec, err := tlp.NewDecoder(variant, width/8)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", name, err)
	}
	return &messageInstance{src: bus, dec: dec}, nil
}
