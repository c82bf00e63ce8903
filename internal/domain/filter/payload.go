package filter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tablequery/internal/core/apperror"
)

// zstdMagic is the zstd frame header.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// maxPayloadMemory caps the decompressed size of a filters payload.
const maxPayloadMemory = 1 << 20

// Codec encodes and decodes filter payloads: base64 over JSON, optionally zstd-compressed.
type Codec struct {
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewCodec creates a codec. Payloads whose JSON exceeds threshold bytes are compressed;
// threshold <= 0 disables automatic compression.
func NewCodec(threshold int) (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadMemory))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Codec{
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: threshold,
	}, nil
}

var (
	defaultCodecOnce sync.Once
	defaultCodec     *Codec
	defaultCodecErr  error
)

func sharedCodec() (*Codec, error) {
	defaultCodecOnce.Do(func() {
		defaultCodec, defaultCodecErr = NewCodec(0)
	})
	return defaultCodec, defaultCodecErr
}

// DecodePayload decodes an encoded filters payload with the shared codec.
// An empty payload yields no filters and no error.
func DecodePayload(encoded, delimiter string) ([]Filter, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	c, err := sharedCodec()
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return c.Decode(encoded, delimiter)
}

// EncodePayload encodes entries (a slice or mapping of DSL strings and filter objects).
func EncodePayload(entries any, compress bool) (string, error) {
	c, err := sharedCodec()
	if err != nil {
		return "", err
	}
	return c.Encode(entries, compress)
}

// Encode serializes entries to JSON, compresses when forced or above the threshold,
// and returns standard base64.
func (c *Codec) Encode(entries any, compress bool) (string, error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshal filters: %w", err)
	}

	if compress || (c.compressThreshold > 0 && len(raw) > c.compressThreshold) {
		raw = c.encoder.EncodeAll(raw, nil)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. Padded, unpadded and URL-safe base64 are all accepted.
func (c *Codec) Decode(encoded, delimiter string) ([]Filter, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}

	raw, err := DecodeBase64(encoded)
	if err != nil {
		return nil, apperror.NewValidation("filters payload is not valid base64").
			WithDetail("filters", encoded).
			WithCause(err)
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		raw, err = c.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, apperror.NewValidation("filters payload cannot be decompressed").
				WithCause(err)
		}
	}

	return DecodeJSON(raw, delimiter)
}

// DecodeBase64 accepts padded, unpadded and URL-safe base64.
func DecodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var firstErr error
	for _, enc := range encodings {
		out, err := enc.DecodeString(s)
		if err == nil {
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// DecodeJSON turns a JSON array or object of filter entries into filters.
//
// Array entries are DSL strings or filter objects. Object entries with numeric
// keys behave like array entries; any other key is a column name whose value is
// either a DSL tail ("gte;21"), a filter object, a list (membership) or a scalar (equality).
func DecodeJSON(raw []byte, delimiter string) ([]Filter, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperror.NewValidation("filters payload is not valid JSON").WithCause(err)
	}

	switch v := doc.(type) {
	case []any:
		filters := make([]Filter, 0, len(v))
		for _, entry := range v {
			f, err := entryFilter(entry)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
		return filters, nil

	case map[string]any:
		filters := make([]Filter, 0, len(v))
		for _, key := range orderedKeys(v) {
			var (
				f   Filter
				err error
			)
			if isNumericKey(key) {
				f, err = entryFilter(v[key])
			} else {
				f, err = columnFilter(key, v[key], delimiter)
			}
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
		return filters, nil

	case string:
		return []Filter{Spec(v)}, nil

	default:
		return nil, apperror.NewValidation("filters payload must be an array or an object")
	}
}

func entryFilter(entry any) (Filter, error) {
	switch v := entry.(type) {
	case string:
		return Spec(v), nil
	case map[string]any:
		return objectDescriptor("", v)
	default:
		return nil, apperror.NewInvalidFilterFormat(fmt.Sprint(entry))
	}
}

func columnFilter(column string, value any, delimiter string) (Filter, error) {
	switch v := value.(type) {
	case string:
		return Spec(column + delimiter + v), nil
	case map[string]any:
		return objectDescriptor(column, v)
	case []any:
		return Descriptor{Column: column, Operator: InList, Value: normalizeSlice(v)}, nil
	default:
		return Descriptor{Column: column, Operator: Equal, Value: normalize(v)}, nil
	}
}

// objectDescriptor builds a descriptor from {"column"|"field", "operator"|"op", "value"}.
// A between value is {"start","end"}, a two element array, or top-level start/end keys.
func objectDescriptor(column string, obj map[string]any) (Descriptor, error) {
	if c, ok := stringField(obj, "column", "field"); ok {
		column = c
	}

	opToken, ok := stringField(obj, "operator", "op")
	if !ok {
		opToken = string(Equal)
	}

	invalid := apperror.NewInvalidFilterFormat(fmt.Sprintf("%s %s %v", column, opToken, obj["value"]))

	op, ok := Canonicalize(opToken)
	if !ok {
		return Descriptor{}, invalid
	}

	d := Descriptor{Column: strings.TrimSpace(column), Operator: op}
	if op == Between {
		r, ok := rangeValue(obj)
		if !ok {
			return Descriptor{}, invalid
		}
		d.Value = r
	} else {
		d.Value = normalize(obj["value"])
	}

	if err := d.Validate(); err != nil {
		return Descriptor{}, invalid
	}
	return d, nil
}

func rangeValue(obj map[string]any) (Range, bool) {
	switch v := obj["value"].(type) {
	case map[string]any:
		start, okStart := v["start"]
		end, okEnd := v["end"]
		if okStart && okEnd {
			return Range{Start: normalize(start), End: normalize(end)}, true
		}
	case []any:
		if len(v) == 2 {
			return Range{Start: normalize(v[0]), End: normalize(v[1])}, true
		}
	}

	start, okStart := obj["start"]
	end, okEnd := obj["end"]
	if okStart && okEnd {
		return Range{Start: normalize(start), End: normalize(end)}, true
	}
	return Range{}, false
}

func stringField(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// normalize converts json.Number into int64 or float64.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case []any:
		return normalizeSlice(val)
	default:
		return val
	}
}

func normalizeSlice(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}

// orderedKeys returns numeric keys in numeric order, then the rest alphabetically.
func orderedKeys(m map[string]any) []string {
	var numeric, named []string
	for k := range m {
		if isNumericKey(k) {
			numeric = append(numeric, k)
		} else {
			named = append(named, k)
		}
	}

	sort.Slice(numeric, func(i, j int) bool {
		a, _ := strconv.Atoi(numeric[i])
		b, _ := strconv.Atoi(numeric[j])
		return a < b
	})
	slices.Sort(named)

	return append(numeric, named...)
}

func isNumericKey(k string) bool {
	_, err := strconv.Atoi(k)
	return err == nil
}
