package tablequery

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/filter"
)

// Options is the per-request options bag.
//
// JSON keys: query, byColumn, filters, orderBy, ascending, page, limit, delimiter.
// "filters" may be an array/object of filter entries or a base64 payload string.
type Options struct {
	Search       Search `json:"query"`
	SearchColumn string `json:"byColumn,omitempty"`

	// Filters are ready-made filters. Decoded entries from the payload fields are appended.
	Filters []filter.Filter `json:"-"`

	// EncodedFilters is a base64 (optionally zstd-compressed) JSON payload of filters.
	EncodedFilters string `json:"-"`

	OrderBy   string `json:"orderBy,omitempty"`
	Ascending Flag   `json:"ascending,omitempty"`
	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`

	// Delimiter overrides filter.DefaultDelimiter for DSL filter strings.
	Delimiter string `json:"delimiter,omitempty"`

	rawFilters json.RawMessage
}

// HasPendingFilters reports whether encoded or raw JSON filters still need decoding.
func (o Options) HasPendingFilters() bool {
	return o.EncodedFilters != "" || len(o.rawFilters) > 0
}

// FilterDelimiter returns the DSL delimiter in effect.
func (o Options) FilterDelimiter() string {
	if o.Delimiter == "" {
		return filter.DefaultDelimiter
	}
	return o.Delimiter
}

// ResolveFilters returns Filters followed by the decoded raw JSON and encoded payload entries.
func (o Options) ResolveFilters() ([]filter.Filter, error) {
	out := append([]filter.Filter(nil), o.Filters...)

	if len(o.rawFilters) > 0 {
		decoded, err := filter.DecodeJSON(o.rawFilters, o.FilterDelimiter())
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}

	if o.EncodedFilters != "" {
		decoded, err := filter.DecodePayload(o.EncodedFilters, o.FilterDelimiter())
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}

	return out, nil
}

// decoded returns a copy of o with every pending filter decoded into Filters.
func (o Options) decoded() (Options, error) {
	if !o.HasPendingFilters() {
		return o, nil
	}
	filters, err := o.ResolveFilters()
	if err != nil {
		return o, err
	}
	o.Filters = filters
	o.EncodedFilters = ""
	o.rawFilters = nil
	return o, nil
}

// UnmarshalJSON accepts "filters" as a JSON string (encoded payload) or as JSON entries,
// and page/limit as numbers or numeric strings.
func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	aux := struct {
		*plain
		Filters json.RawMessage `json:"filters"`
		Page    json.RawMessage `json:"page"`
		Limit   json.RawMessage `json:"limit"`
	}{plain: (*plain)(o)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	page, err := lenientInt(aux.Page)
	if err != nil {
		return apperror.NewValidation("page must be a number").WithCause(err)
	}
	limit, err := lenientInt(aux.Limit)
	if err != nil {
		return apperror.NewValidation("limit must be a number").WithCause(err)
	}
	o.Page, o.Limit = page, limit

	raw := bytes.TrimSpace(aux.Filters)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return err
		}
		o.EncodedFilters = encoded
	default:
		o.rawFilters = append(json.RawMessage(nil), raw...)
	}
	return nil
}

// DecodeOptions decodes a base64 JSON options bag.
func DecodeOptions(encoded string) (Options, error) {
	var opts Options
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return opts, nil
	}

	raw, err := filter.DecodeBase64(encoded)
	if err != nil {
		return opts, apperror.NewValidation("options payload is not valid base64").WithCause(err)
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		if appErr, ok := apperror.AsAppError(err); ok {
			return opts, appErr
		}
		return opts, apperror.NewValidation("options payload is not valid JSON").WithCause(err)
	}
	return opts, nil
}

func lenientInt(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// Search is the free-text search value: plain text or a {start, end} date range.
type Search struct {
	Text  string
	Start string
	End   string
}

// Text returns a plain text search.
func Text(s string) Search {
	return Search{Text: s}
}

// DateRange returns a YYYY-MM-DD range search.
func DateRange(start, end string) Search {
	return Search{Start: start, End: end}
}

// IsRange reports whether the search is a date range.
func (s Search) IsRange() bool {
	return s.Start != "" || s.End != ""
}

// IsZero reports whether no search was requested.
func (s Search) IsZero() bool {
	return s.Text == "" && !s.IsRange()
}

func (s Search) MarshalJSON() ([]byte, error) {
	if s.IsRange() {
		return json.Marshal(map[string]string{"start": s.Start, "end": s.End})
	}
	return json.Marshal(s.Text)
}

func (s *Search) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = Search{}

	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &s.Text)
	case data[0] == '{':
		var r struct {
			Start string `json:"start"`
			End   string `json:"end"`
		}
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		s.Start, s.End = r.Start, r.End
		return nil
	default:
		// numbers and booleans are searched as text
		s.Text = string(data)
		return nil
	}
}

// Flag is a bool that also accepts "true"/"false"/"1"/"0" strings and 0/1 numbers.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "1", "yes", "on":
		*f = true
	case "false", "0", "no", "off", "", "null":
		*f = false
	default:
		return apperror.NewValidation("ascending must be a boolean").WithDetail("ascending", s)
	}
	return nil
}

// ParseFlag parses a query-string flag with the same rules as the JSON form.
func ParseFlag(s string) (Flag, error) {
	var f Flag
	err := f.UnmarshalJSON([]byte(s))
	return f, err
}
