package schema

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/danmuck/edgewire/internal/protocol/codec"
	"github.com/danmuck/edgewire/internal/protocol/frame"
	"github.com/danmuck/edgewire/internal/protocol/tlv"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

// Codec kinds accepted in a definition's type key.
const (
	KindString = "string"
	KindBytes  = "bytes"
	KindEnum   = "enum"
	KindHeader = "header"
	KindFrame  = "frame"

	// KindEnvelope is the fixed 32-byte envelope with auth and payload.
	KindEnvelope = "envelope"
	// KindTLV is one id/type/length-prefixed field.
	KindTLV = "tlv"
)

// Definition is the TOML shape of a protocol description.
//
//	root = "message"
//
//	[codecs.kind]
//	type = "enum"
//	underlying = "uint8"
//	members = { ping = 0, text = 1 }
//
//	[codecs.message]
//	type = "header"
//	discriminator = "kind"
//	bodies = { ping = "uint32", text = "line" }
type Definition struct {
	Root   string              `toml:"root"`
	Codecs map[string]CodecDef `toml:"codecs"`
}

// CodecDef declares one named codec. Which keys apply depends on Type.
// References name either a scalar (uint8 ... float64) or another entry.
type CodecDef struct {
	Type string `toml:"type"`

	// string, bytes
	Prefix    string `toml:"prefix"`
	Delimiter string `toml:"delimiter"`
	Encoding  string `toml:"encoding"`
	MaxLength int    `toml:"max_length"`

	// enum
	Underlying string           `toml:"underlying"`
	Members    map[string]int64 `toml:"members"`

	// header
	Discriminator string            `toml:"discriminator"`
	Bodies        map[string]string `toml:"bodies"`

	// frame
	Fields []string `toml:"fields"`

	// envelope; max_length caps the payload
	Magic        int64 `toml:"magic"`
	MaxAuthBytes int64 `toml:"max_auth_bytes"`
}

type ValidationError struct {
	Codec  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Codec == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: codec=%s: %s", e.Codec, e.Reason)
}

// Schema is a compiled definition. Every named codec is wrapped with
// codec.Named so decode errors carry the definition path.
type Schema struct {
	root   string
	codecs map[string]codec.Codec
}

// Load reads and compiles a TOML definition file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML and compiles it. Unknown keys are rejected.
func Parse(data []byte) (*Schema, error) {
	var def Definition
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	return Compile(def)
}

// Compile validates def and builds its codecs.
func Compile(def Definition) (*Schema, error) {
	if len(def.Codecs) == 0 {
		return nil, ValidationError{Reason: "no codecs defined"}
	}
	root := strings.TrimSpace(def.Root)
	if root == "" {
		return nil, ValidationError{Reason: "root is required"}
	}
	if _, ok := def.Codecs[root]; !ok {
		return nil, ValidationError{Codec: root, Reason: "root is not a defined codec"}
	}
	for _, name := range sortedNames(def.Codecs) {
		if _, clash := codec.Scalars[name]; clash {
			return nil, ValidationError{Codec: name, Reason: "name shadows a scalar codec"}
		}
	}

	c := &compiler{
		defs:     def.Codecs,
		built:    make(map[string]codec.Codec, len(def.Codecs)),
		visiting: make(map[string]bool),
	}
	for _, name := range sortedNames(def.Codecs) {
		if _, err := c.build(name, nil); err != nil {
			log.Error().Err(err).Str("codec", name).Msg("schema.Compile failed")
			return nil, err
		}
	}
	log.Debug().Str("root", root).Int("codecs", len(c.built)).Msg("schema.Compile ok")
	return &Schema{root: root, codecs: c.built}, nil
}

// Root returns the codec selected by the definition's root key.
func (s *Schema) Root() codec.Codec {
	return s.codecs[s.root]
}

func (s *Schema) RootName() string {
	return s.root
}

// Codec returns a named codec or scalar.
func (s *Schema) Codec(name string) (codec.Codec, bool) {
	if c, ok := s.codecs[name]; ok {
		return c, true
	}
	sc, ok := codec.Scalars[name]
	return sc, ok
}

// Names lists defined codec names in sorted order.
func (s *Schema) Names() []string {
	return sortedNames(s.codecs)
}

type compiler struct {
	defs     map[string]CodecDef
	built    map[string]codec.Codec
	visiting map[string]bool
}

// resolve turns a reference into a codec, building definitions on demand.
func (c *compiler) resolve(from, ref string, path []string) (codec.Codec, error) {
	ref = strings.TrimSpace(ref)
	if sc, ok := codec.Scalars[ref]; ok {
		return sc, nil
	}
	if _, ok := c.defs[ref]; !ok {
		return nil, ValidationError{Codec: from, Reason: fmt.Sprintf("unknown reference %q", ref)}
	}
	return c.build(ref, path)
}

func (c *compiler) build(name string, path []string) (codec.Codec, error) {
	if built, ok := c.built[name]; ok {
		return built, nil
	}
	path = append(path, name)
	if c.visiting[name] {
		return nil, ValidationError{Codec: name, Reason: "reference cycle " + strings.Join(path, " -> ")}
	}
	c.visiting[name] = true
	defer delete(c.visiting, name)

	def := c.defs[name]
	var (
		out codec.Codec
		err error
	)
	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case KindString:
		out, err = c.buildString(name, def, path)
	case KindBytes:
		out, err = c.buildBytes(name, def, path)
	case KindEnum:
		out, err = c.buildEnum(name, def, path)
	case KindHeader:
		out, err = c.buildHeader(name, def, path)
	case KindFrame:
		out, err = c.buildFrame(name, def, path)
	case KindEnvelope:
		out, err = buildEnvelope(name, def)
	case KindTLV:
		out = tlv.Codec
	default:
		return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("unknown type %q", def.Type)}
	}
	if err != nil {
		return nil, err
	}
	named := codec.Named(name, out)
	c.built[name] = named
	return named, nil
}

func (c *compiler) buildString(name string, def CodecDef, path []string) (codec.Codec, error) {
	opts := codec.StringOptions{
		Delimiter: []byte(def.Delimiter),
		Encoding:  def.Encoding,
		MaxLength: def.MaxLength,
	}
	if def.Prefix != "" {
		prefix, err := c.resolve(name, def.Prefix, path)
		if err != nil {
			return nil, err
		}
		opts.Prefix = prefix
	}
	out, err := codec.NewString(opts)
	if err != nil {
		return nil, ValidationError{Codec: name, Reason: err.Error()}
	}
	return out, nil
}

func (c *compiler) buildBytes(name string, def CodecDef, path []string) (codec.Codec, error) {
	if def.Prefix == "" {
		return nil, ValidationError{Codec: name, Reason: "bytes needs a prefix"}
	}
	prefix, err := c.resolve(name, def.Prefix, path)
	if err != nil {
		return nil, err
	}
	out, err := codec.NewByteBlock(codec.BlockOptions{Prefix: prefix, MaxLength: def.MaxLength})
	if err != nil {
		return nil, ValidationError{Codec: name, Reason: err.Error()}
	}
	return out, nil
}

func (c *compiler) buildEnum(name string, def CodecDef, path []string) (codec.Codec, error) {
	if _, ok := codec.Scalars[def.Underlying]; !ok {
		return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("enum underlying %q is not a scalar", def.Underlying)}
	}
	underlying, err := c.resolve(name, def.Underlying, path)
	if err != nil {
		return nil, err
	}
	members := make(map[string]any, len(def.Members))
	for sym, v := range def.Members {
		members[sym] = v
	}
	out, err := codec.NewEnum(codec.EnumOptions{Underlying: underlying, Members: members})
	if err != nil {
		return nil, ValidationError{Codec: name, Reason: err.Error()}
	}
	for _, sym := range out.Symbols() {
		v, _ := out.Value(sym)
		if _, err := codec.Encode(underlying, v); err != nil {
			return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("member %q: %v", sym, err)}
		}
	}
	return out, nil
}

func (c *compiler) buildHeader(name string, def CodecDef, path []string) (codec.Codec, error) {
	ref := strings.TrimSpace(def.Discriminator)
	if ref == "" {
		return nil, ValidationError{Codec: name, Reason: "header needs a discriminator"}
	}
	tagKey, err := c.tagParser(name, ref)
	if err != nil {
		return nil, err
	}
	disc, err := c.resolve(name, ref, path)
	if err != nil {
		return nil, err
	}

	bodies := make(map[any]codec.Codec, len(def.Bodies))
	for _, raw := range sortedNames(def.Bodies) {
		tag, err := tagKey(raw)
		if err != nil {
			return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("body key %q: %v", raw, err)}
		}
		body, err := c.resolve(name, def.Bodies[raw], path)
		if err != nil {
			return nil, err
		}
		bodies[tag] = body
	}
	out, err := codec.NewHeader(codec.HeaderOptions{Discriminator: disc, Bodies: bodies})
	if err != nil {
		return nil, ValidationError{Codec: name, Reason: err.Error()}
	}
	return out, nil
}

// tagParser picks how body keys are read: enum symbols, integers for
// integer scalars, or text for string discriminators.
func (c *compiler) tagParser(name, ref string) (func(string) (any, error), error) {
	if sc, ok := codec.Scalars[ref]; ok {
		if strings.HasPrefix(sc.Name(), "float") {
			return nil, ValidationError{Codec: name, Reason: "float discriminators are not supported"}
		}
		return parseInteger, nil
	}
	d, ok := c.defs[ref]
	if !ok {
		return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("unknown reference %q", ref)}
	}
	switch strings.ToLower(strings.TrimSpace(d.Type)) {
	case KindEnum:
		return func(raw string) (any, error) {
			if _, ok := d.Members[raw]; !ok {
				return nil, fmt.Errorf("not a member of enum %s", ref)
			}
			return raw, nil
		}, nil
	case KindString:
		return func(raw string) (any, error) { return raw, nil }, nil
	}
	return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("discriminator %q must be an integer scalar, enum or string", ref)}
}

func parseInteger(raw string) (any, error) {
	if n, err := strconv.ParseInt(raw, 0, 64); err == nil {
		return n, nil
	}
	n, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return nil, errors.New("not an integer")
	}
	return n, nil
}

func (c *compiler) buildFrame(name string, def CodecDef, path []string) (codec.Codec, error) {
	fields := make([]codec.Codec, 0, len(def.Fields))
	for _, ref := range def.Fields {
		f, err := c.resolve(name, ref, path)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return codec.NewFrame(fields...), nil
}

func buildEnvelope(name string, def CodecDef) (codec.Codec, error) {
	if def.Magic < 0 || def.Magic > math.MaxUint32 {
		return nil, ValidationError{Codec: name, Reason: fmt.Sprintf("magic %d does not fit uint32", def.Magic)}
	}
	if def.MaxLength < 0 || def.MaxAuthBytes < 0 {
		return nil, ValidationError{Codec: name, Reason: "envelope limits must not be negative"}
	}
	limits := frame.DefaultLimits()
	limits.Magic = uint32(def.Magic)
	if def.MaxLength > 0 {
		limits.MaxPayloadBytes = uint64(def.MaxLength)
	}
	if def.MaxAuthBytes > 0 {
		limits.MaxAuthBytes = uint64(def.MaxAuthBytes)
	}
	return frame.NewCodec(limits), nil
}

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
