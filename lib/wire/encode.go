// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Compression selects how opaque fallback payloads are compressed.
type Compression int

const (
	// CompressAuto probes each payload and picks zstd, LZ4, or none.
	CompressAuto Compression = iota
	CompressNone
	CompressLZ4
	CompressZstd
)

// ParseCompression parses a compression name: auto, none, lz4, zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "auto":
		return CompressAuto, nil
	case "none":
		return CompressNone, nil
	case "lz4":
		return CompressLZ4, nil
	case "zstd":
		return CompressZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q (want auto, none, lz4, or zstd)", name)
}

func (c Compression) String() string {
	switch c {
	case CompressAuto:
		return "auto"
	case CompressNone:
		return "none"
	case CompressLZ4:
		return "lz4"
	case CompressZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// Options configures a [Codec].
type Options struct {
	// Fallback enables the opaque serialization fallback. Encoding a
	// value with no wire representation then produces an opaque blob
	// instead of an EncodeError, and decoding recognizes such blobs.
	Fallback bool

	// Compression applies to opaque payloads.
	Compression Compression
}

// Codec converts between host values and messages. A Codec is safe for
// concurrent use.
type Codec struct {
	options Options

	// objects holds values that are in the fallback by reference
	// because they cannot be serialized (functions, channels). The
	// companion keeps only the id.
	mu         sync.Mutex
	objects    map[uint64]any
	nextObject uint64
}

// NewCodec returns a codec with the given options.
func NewCodec(options Options) *Codec {
	return &Codec{options: options, objects: make(map[uint64]any)}
}

// Options returns the codec's options.
func (c *Codec) Options() Options { return c.options }

// Encode converts a host value into a data message. Instructions built
// by [Eval], [Exec], [GetVar], and the other constructors encode as
// active messages.
func (c *Codec) Encode(value any) (*Message, error) {
	e := &encoder{codec: c, fallback: c.options.Fallback}
	if err := e.value(value, contextMessage); err != nil {
		return nil, err
	}
	return &Message{packets: e.packets}, nil
}

// Encodable reports whether value has a direct wire representation,
// without consulting the fallback.
func (c *Codec) Encodable(value any) bool {
	e := &encoder{codec: c}
	return e.value(value, contextMessage) == nil
}

// encoder accumulates the packets of one message.
type encoder struct {
	codec    *Codec
	fallback bool
	packets  []Packet
}

func (e *encoder) append(packets ...Packet) {
	e.packets = append(e.packets, packets...)
}

// value encodes one host value as a clause allowed in context c.
func (e *encoder) value(v any, c context) error {
	tag, form, err := e.classify(v)
	if err != nil {
		return err
	}
	entry, err := lookup(tag, c)
	if err != nil {
		return &EncodeError{Value: v, Reason: fmt.Sprintf("%s is not allowed in a %s", tag, c), Err: err}
	}
	return entry.encode(e, tag, form)
}

// classify maps a host value to its clause tag and the clause's
// encoder form.
func (e *encoder) classify(v any) (Tag, any, error) {
	switch x := v.(type) {
	case nil:
		return TagNil, nil, nil
	case Instruction:
		return instruction(x)
	case *Instruction:
		return instruction(*x)
	case Array:
		return e.array(x)
	case *Opaque:
		return TagUChar, Array{Type: TagUChar, Shape: []int{len(x.blob)}, Data: x.blob}, nil
	case string:
		return TagString, stringArray{values: []string{x}}, nil
	case []string:
		return TagString, stringArray{shape: []int{len(x)}, values: x}, nil
	case Range, Marker:
		return TagSlice, x, nil
	case Referencer:
		return TagGetVar, Instruction{Tag: TagGetVar, Name: x.RemoteName()}, nil
	case []any:
		return TagList, x, nil
	case map[string]any:
		return TagDict, x, nil
	case bool:
		var b uint8
		if x {
			b = 1
		}
		return TagUChar, Array{Type: TagUChar, Data: []uint8{b}}, nil
	case int:
		return TagLong, Array{Type: TagLong, Data: []int64{int64(x)}}, nil
	case uint:
		return TagULong, Array{Type: TagULong, Data: []uint64{uint64(x)}}, nil
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128, LongDouble:
		return e.scalar(x)
	}
	if tag, _, _, ok := elementsToBytes(v); ok {
		a, err := NewArray(v)
		if err != nil {
			return 0, nil, err
		}
		return tag, a, nil
	}
	return e.reflected(v)
}

func instruction(i Instruction) (Tag, any, error) {
	if !i.Tag.IsActive() && i.Tag != TagEOL {
		return 0, nil, &EncodeError{Value: i, Reason: fmt.Sprintf("%s is not an instruction tag", i.Tag)}
	}
	return i.Tag, i, nil
}

// scalar wraps a fixed-width Go number as a rank-zero array.
func (e *encoder) scalar(v any) (Tag, any, error) {
	rv := reflect.ValueOf(v)
	slice := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
	slice.Index(0).Set(rv)
	tag, _, _, _ := elementsToBytes(slice.Interface())
	return tag, Array{Type: tag, Data: slice.Interface()}, nil
}

// array validates an Array value. A non-canonical Type is kept if its
// element layout matches Data.
func (e *encoder) array(a Array) (Tag, any, error) {
	tag, count, _, ok := elementsToBytes(a.Data)
	if !ok {
		return e.unencodable(a, fmt.Sprintf("array data %T is not a numeric slice", a.Data))
	}
	if product(a.Shape) != count {
		return 0, nil, &EncodeError{Value: a, Reason: fmt.Sprintf("shape %v does not hold %d elements", a.Shape, count)}
	}
	if a.Type != tag && (a.Type.Kind() != tag.Kind() || a.Type.Size() != tag.Size()) {
		return 0, nil, &EncodeError{Value: a, Reason: fmt.Sprintf("type %s does not match data %T", a.Type, a.Data)}
	}
	if a.Type == tag || !a.Type.IsNumeric() {
		a.Type = tag
	}
	return a.Type, a, nil
}

// reflected handles the values that need reflection: typed slices and
// arrays (rectangular numeric or string nests become arrays, anything
// else a list) and maps with string keys.
func (e *encoder) reflected(v any) (Tag, any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		shape, leaf, ok := nestedShape(rv)
		if ok && leaf.Kind() == reflect.String {
			flat := make([]string, 0, product(shape))
			flatten(rv, len(shape), func(x reflect.Value) { flat = append(flat, x.String()) })
			return TagString, stringArray{shape: shape, values: flat}, nil
		}
		if ok {
			if elem, numeric := elementType(leaf); numeric {
				flat := reflect.MakeSlice(reflect.SliceOf(elem), 0, product(shape))
				flatten(rv, len(shape), func(x reflect.Value) { flat = reflect.Append(flat, x.Convert(elem)) })
				tag, _, _, _ := elementsToBytes(flat.Interface())
				return tag, Array{Type: tag, Shape: shape, Data: flat.Interface()}, nil
			}
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return TagList, items, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return e.unencodable(v, "map keys are not strings")
		}
		members := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			members[iter.Key().String()] = iter.Value().Interface()
		}
		return TagDict, members, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return TagNil, nil, nil
		}
		return e.classify(rv.Elem().Interface())
	case reflect.String:
		return TagString, stringArray{values: []string{rv.String()}}, nil
	case reflect.Bool:
		return e.classify(rv.Bool())
	}
	if elem, numeric := elementType(rv.Type()); numeric {
		return e.scalar(rv.Convert(elem).Interface())
	}
	return e.unencodable(v, "unsupported type")
}

// unencodable returns the opaque fallback encoding of v, or an
// EncodeError if the fallback is off.
func (e *encoder) unencodable(v any, reason string) (Tag, any, error) {
	if !e.fallback {
		return 0, nil, &EncodeError{Value: v, Reason: reason}
	}
	blob, err := e.codec.wrap(v)
	if err != nil {
		return 0, nil, &EncodeError{Value: v, Reason: "opaque fallback failed", Err: err}
	}
	return TagUChar, Array{Type: TagUChar, Shape: []int{len(blob)}, Data: blob}, nil
}

// elementType returns the Go element type an array of leaf values is
// stored as. Platform-sized int and uint map to their 8-byte forms and
// bool to uint8.
func elementType(leaf reflect.Type) (reflect.Type, bool) {
	switch leaf.Kind() {
	case reflect.Int, reflect.Int64:
		return reflect.TypeFor[int64](), true
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return reflect.TypeFor[uint64](), true
	case reflect.Int8:
		return reflect.TypeFor[int8](), true
	case reflect.Int16:
		return reflect.TypeFor[int16](), true
	case reflect.Int32:
		return reflect.TypeFor[int32](), true
	case reflect.Uint8:
		return reflect.TypeFor[uint8](), true
	case reflect.Uint16:
		return reflect.TypeFor[uint16](), true
	case reflect.Uint32:
		return reflect.TypeFor[uint32](), true
	case reflect.Float32:
		return reflect.TypeFor[float32](), true
	case reflect.Float64:
		return reflect.TypeFor[float64](), true
	case reflect.Complex64:
		return reflect.TypeFor[complex64](), true
	case reflect.Complex128:
		return reflect.TypeFor[complex128](), true
	}
	if leaf == reflect.TypeFor[LongDouble]() {
		return leaf, true
	}
	return nil, false
}

// nestedShape reports the row-major shape of a rectangular nest of
// slices or arrays and its leaf element type. ok is false for jagged
// nests and for leaves that are themselves interfaces.
func nestedShape(rv reflect.Value) (shape []int, leaf reflect.Type, ok bool) {
	typ := rv.Type()
	depth := 0
	for typ.Kind() == reflect.Slice || typ.Kind() == reflect.Array {
		if typ == reflect.TypeFor[LongDouble]() {
			break
		}
		typ = typ.Elem()
		depth++
	}
	if typ.Kind() == reflect.Interface {
		return nil, nil, false
	}
	shape = make([]int, depth)
	for i := range shape {
		shape[i] = -1
	}
	if !measure(rv, shape, 0) {
		return nil, nil, false
	}
	return shape, typ, true
}

// measure fills shape from rv and checks every sub-slice agrees.
func measure(rv reflect.Value, shape []int, level int) bool {
	if level == len(shape) {
		return true
	}
	n := rv.Len()
	if shape[level] != -1 && shape[level] != n {
		return false
	}
	shape[level] = n
	for i := 0; i < n; i++ {
		if !measure(rv.Index(i), shape, level+1) {
			return false
		}
	}
	if n == 0 {
		// Inner dimensions of an empty nest are zero.
		for i := level + 1; i < len(shape); i++ {
			shape[i] = 0
		}
	}
	return true
}

// flatten calls leaf for every element of a rectangular nest in
// row-major order.
func flatten(rv reflect.Value, depth int, leaf func(reflect.Value)) {
	if depth == 0 {
		leaf(rv)
		return
	}
	for i := 0; i < rv.Len(); i++ {
		flatten(rv.Index(i), depth-1, leaf)
	}
}

// Clause encoders. Each receives the form produced by classify.

func encodeNumeric(e *encoder, tag Tag, v any) error {
	a := v.(Array)
	_, count, raw, _ := elementsToBytes(a.Data)
	e.append(headerPacket(tag, int64(len(a.Shape))))
	if len(a.Shape) > 0 {
		e.append(longPacket(reversedDims(a.Shape)...))
	}
	e.append(Packet{Elem: tag, Count: count, Data: raw})
	return nil
}

// reversedDims converts a row-major shape to the wire's
// fastest-varying-first dims.
func reversedDims(shape []int) []int64 {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[len(shape)-1-i] = int64(d)
	}
	return dims
}

func encodeString(e *encoder, _ Tag, v any) error {
	s := v.(stringArray)
	lengths := make([]int64, len(s.values))
	var text []byte
	for i, value := range s.values {
		b, err := terminated(value)
		if err != nil {
			return err
		}
		lengths[i] = int64(len(b))
		text = append(text, b...)
	}
	e.append(headerPacket(TagString, int64(len(s.shape))))
	if len(s.shape) > 0 {
		e.append(longPacket(reversedDims(s.shape)...))
	}
	e.append(longPacket(lengths...))
	if len(text) > 0 {
		e.append(bytePacket(text))
	}
	return nil
}

func encodeSlice(e *encoder, _ Tag, v any) error {
	switch x := v.(type) {
	case Marker:
		flags := int64(sliceFlagsNewAxis)
		if x == Ellipsis {
			flags = sliceFlagsEllipsis
		} else if x != NewAxis {
			return &EncodeError{Value: x, Reason: "unknown index marker"}
		}
		e.append(headerPacket(TagSlice, flags), longPacket(0, 0, 1))
	case Range:
		start, stop, step := x.Start, x.Stop, x.StepOrDefault()
		if x.OmitStart {
			start = 0
		}
		if x.OmitStop {
			stop = 0
		}
		e.append(headerPacket(TagSlice, x.flags()), longPacket(start, stop, step))
	}
	return nil
}

func encodeNil(e *encoder, _ Tag, _ any) error {
	e.append(headerPacket(TagNil, 0))
	return nil
}

func encodeList(e *encoder, _ Tag, v any) error {
	e.append(headerPacket(TagList, 0))
	return e.list(v.([]any), nil, contextList)
}

func encodeDict(e *encoder, _ Tag, v any) error {
	e.append(headerPacket(TagDict, 0))
	return e.list(nil, v.(map[string]any), contextKeywords)
}

// list encodes positional items then keyword members (sorted by name)
// and the EOL(0) terminator.
func (e *encoder) list(items []any, keywords map[string]any, c context) error {
	for _, item := range items {
		if err := e.value(item, c); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(keywords))
	for name := range keywords {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.setvar(name, keywords[name]); err != nil {
			return err
		}
	}
	e.append(headerPacket(TagEOL, EOLEnd))
	return nil
}

func encodeEOL(e *encoder, _ Tag, v any) error {
	e.append(headerPacket(TagEOL, v.(Instruction).Flag))
	return nil
}

// name appends an active header and its name packet.
func (e *encoder) name(tag Tag, name string) error {
	b, err := latin1(name)
	if err != nil {
		return err
	}
	e.append(headerPacket(tag, int64(len(b))))
	if len(b) > 0 {
		e.append(bytePacket(b))
	}
	return nil
}

func (e *encoder) setvar(name string, value any) error {
	if err := e.name(TagSetVar, name); err != nil {
		return err
	}
	return e.value(value, contextValue)
}

func encodeNamed(e *encoder, tag Tag, v any) error {
	return e.name(tag, v.(Instruction).Name)
}

func encodeSetVar(e *encoder, _ Tag, v any) error {
	i := v.(Instruction)
	return e.setvar(i.Name, i.Value)
}

func encodeCall(e *encoder, tag Tag, v any) error {
	i := v.(Instruction)
	if err := e.name(tag, i.Name); err != nil {
		return err
	}
	return e.list(i.Args, i.Keywords, contextArguments)
}

func encodeGetSlice(e *encoder, _ Tag, v any) error {
	i := v.(Instruction)
	if err := e.name(TagGetSlice, i.Name); err != nil {
		return err
	}
	return e.list(i.Args, nil, contextList)
}

func encodeSetSlice(e *encoder, _ Tag, v any) error {
	i := v.(Instruction)
	if err := e.name(TagSetSlice, i.Name); err != nil {
		return err
	}
	if err := e.list(i.Args, nil, contextList); err != nil {
		return err
	}
	return e.value(i.Value, contextValue)
}

// Instruction constructors.

// Eval returns the instruction to evaluate an expression and reply
// with its value.
func Eval(text string) Instruction { return Instruction{Tag: TagEval, Name: text} }

// Exec returns the instruction to execute code and reply with nil.
func Exec(text string) Instruction { return Instruction{Tag: TagExec, Name: text} }

// GetVar returns the instruction to fetch a variable.
func GetVar(name string) Instruction { return Instruction{Tag: TagGetVar, Name: name} }

// SetVar returns the instruction to assign a variable.
func SetVar(name string, value any) Instruction {
	return Instruction{Tag: TagSetVar, Name: name, Value: value}
}

// FunCall returns the instruction to call a function for its value.
func FunCall(name string, args []any, keywords map[string]any) Instruction {
	return Instruction{Tag: TagFunCall, Name: name, Args: args, Keywords: keywords}
}

// SubCall returns the instruction to call a function as a subroutine,
// discarding any value.
func SubCall(name string, args []any, keywords map[string]any) Instruction {
	return Instruction{Tag: TagSubCall, Name: name, Args: args, Keywords: keywords}
}

// GetSlice returns the instruction to fetch part of an array.
func GetSlice(name string, indices ...any) Instruction {
	return Instruction{Tag: TagGetSlice, Name: name, Args: indices}
}

// SetSlice returns the instruction to assign part of an array.
func SetSlice(name string, value any, indices ...any) Instruction {
	return Instruction{Tag: TagSetSlice, Name: name, Args: indices, Value: value}
}

// GetShape returns the instruction to fetch type and shape metadata.
func GetShape(name string) Instruction { return Instruction{Tag: TagGetShape, Name: name} }

// EOL returns an end-of-list marker with the given flag.
func EOL(flag int64) Instruction { return Instruction{Tag: TagEOL, Flag: flag} }
