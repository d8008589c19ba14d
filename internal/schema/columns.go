package schema

import (
	"math"
	"strconv"
	"time"

	"github.com/place-engineering/sitelayers/internal/esri"
	"github.com/place-engineering/sitelayers/internal/model"
)

// Kind is the DBF storage class of a column.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindFloat
	KindDate
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

const (
	maxStringSize  = 254
	maxIntegerSize = 19
	maxFloatSize   = 24
	floatDecimals  = 6
	dateSize       = 8
)

// Column describes one output column.
type Column struct {
	Source   string // original attribute name
	Name     string // normalized DBF name
	Kind     Kind
	Size     uint8
	Decimals uint8
}

// Columns builds the output columns of a collection: names come from
// Normalize over fc.Columns(), kinds from the declared schema and the
// observed values.
func Columns(fc *model.FeatureCollection) []Column {
	sources := fc.Columns()
	names := Normalize(sources)
	cols := make([]Column, len(sources))
	for i, src := range sources {
		def, _ := fc.Field(src)
		cols[i] = inferColumn(src, names[i], def, fc.Features)
	}
	return cols
}

func inferColumn(src, name string, def model.FieldDef, features []model.FeatureRecord) Column {
	col := Column{Source: src, Name: name}

	if def.Type == esri.FieldTypeDate {
		col.Kind = KindDate
		col.Size = dateSize
		return col
	}

	var sawInt, sawFloat, sawOther bool
	for _, rec := range features {
		switch rec.Attributes[src].(type) {
		case nil:
		case int64, int:
			sawInt = true
		case float64:
			sawFloat = true
		default:
			sawOther = true
		}
	}

	switch {
	case def.Type == esri.FieldTypeString || sawOther:
		col.Kind = KindString
	case sawFloat:
		col.Kind = KindFloat
		col.Decimals = floatDecimals
	case sawInt:
		col.Kind = KindInteger
	default:
		col.Kind = KindString
	}

	width := 1
	for _, rec := range features {
		v := rec.Attributes[src]
		if v == nil {
			continue
		}
		if n := len(col.format(v)); n > width {
			width = n
		}
	}

	switch col.Kind {
	case KindInteger:
		if width > maxIntegerSize {
			col.Kind = KindString
		}
	case KindFloat:
		if width > maxFloatSize {
			col.Kind = KindString
			col.Decimals = 0
			width = 1
			for _, rec := range features {
				if v := rec.Attributes[src]; v != nil {
					width = max(width, len(col.format(v)))
				}
			}
		}
	}
	if col.Kind == KindString && width > maxStringSize {
		width = maxStringSize
	}
	col.Size = uint8(width)
	return col
}

// Value converts an attribute into the value written for this column: int,
// float64 or string. It returns false for values that should be left blank.
func (c Column) Value(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch c.Kind {
	case KindInteger:
		switch n := v.(type) {
		case int64:
			return int(n), true
		case int:
			return n, true
		}
		return nil, false
	case KindFloat:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, false
			}
			return n, true
		case int64:
			return float64(n), true
		case int:
			return float64(n), true
		}
		return nil, false
	case KindDate:
		ms, ok := epochMillis(v)
		if !ok {
			return nil, false
		}
		return time.UnixMilli(ms).UTC().Format("20060102"), true
	default:
		return truncate(c.format(v), int(c.Size)), true
	}
}

// format renders a value the way it is stored for the column kind.
func (c Column) format(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int64:
		if c.Kind == KindFloat {
			return strconv.FormatFloat(float64(n), 'f', int(c.Decimals), 64)
		}
		return strconv.FormatInt(n, 10)
	case int:
		if c.Kind == KindFloat {
			return strconv.FormatFloat(float64(n), 'f', int(c.Decimals), 64)
		}
		return strconv.Itoa(n)
	case float64:
		if c.Kind == KindFloat {
			return strconv.FormatFloat(n, 'f', int(c.Decimals), 64)
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(n)
	default:
		return ""
	}
}

func epochMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
