package fieldz

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

var errMalformed = errors.New("malformed document")

// DecodeDocument parses one document produced by EncodeDocument.
// String, debug and error values all come back as KindString; integers
// come back in the narrowest kind that holds them; null becomes NaN.
func DecodeDocument(data []byte) (Document, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	doc, err := decodeHeader(v)
	if err != nil {
		return Document{}, err
	}
	sv := v.Get("spans")
	if sv == nil {
		return Document{}, fmt.Errorf("decode document: spans: %w", errMalformed)
	}
	spans, err := sv.Array()
	if err != nil {
		return Document{}, fmt.Errorf("decode document: spans: %w", errMalformed)
	}
	doc.Spans = make([]SpanDocument, 0, len(spans))
	for i, raw := range spans {
		span, err := decodeHeader(raw)
		if err != nil {
			return Document{}, fmt.Errorf("span %d: %w", i, err)
		}
		doc.Spans = append(doc.Spans, SpanDocument{
			Target: span.Target,
			Name:   span.Name,
			Level:  span.Level,
			Fields: span.Fields,
		})
	}
	return doc, nil
}

func decodeHeader(v *fastjson.Value) (Document, error) {
	var doc Document
	if v.Type() != fastjson.TypeObject {
		return doc, fmt.Errorf("decode document: %w", errMalformed)
	}
	doc.Target = string(v.GetStringBytes("target"))
	doc.Name = string(v.GetStringBytes("name"))
	level, err := ParseLevel(string(v.GetStringBytes("level")))
	if err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	doc.Level = level

	fv := v.Get("fields")
	if fv == nil {
		return doc, fmt.Errorf("decode document: fields: %w", errMalformed)
	}
	obj, err := fv.Object()
	if err != nil {
		return doc, fmt.Errorf("decode document: fields: %w", errMalformed)
	}
	doc.Fields = NewFields()
	var verr error
	obj.Visit(func(key []byte, raw *fastjson.Value) {
		if verr != nil {
			return
		}
		val, err := decodeValue(raw)
		if err != nil {
			verr = fmt.Errorf("field %q: %w", key, err)
			return
		}
		doc.Fields.set(string(key), val)
	})
	return doc, verr
}

func decodeValue(v *fastjson.Value) (Value, error) {
	switch v.Type() {
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case fastjson.TypeTrue:
		return BoolValue(true), nil
	case fastjson.TypeFalse:
		return BoolValue(false), nil
	case fastjson.TypeNull:
		return Float64Value(math.NaN()), nil
	case fastjson.TypeNumber:
		return decodeNumber(v.String())
	default:
		return Value{}, fmt.Errorf("unsupported %s value: %w", v.Type(), errMalformed)
	}
}

func decodeNumber(lit string) (Value, error) {
	if strings.ContainsAny(lit, ".eE") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Value{}, err
		}
		return Float64Value(f), nil
	}
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int64Value(i), nil
	}
	if u, err := strconv.ParseUint(lit, 10, 64); err == nil {
		return Uint64Value(u), nil
	}
	if strings.HasPrefix(lit, "-") {
		if i, err := ParseInt128(lit); err == nil {
			return Int128Value(i), nil
		}
	} else if u, err := ParseUint128(lit); err == nil {
		return Uint128Value(u), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, err
	}
	return Float64Value(f), nil
}

// ReadDocuments calls fn for each document in a stream written by a Sink.
// Documents are pretty-printed, so each ends at a line holding a lone "}".
func ReadDocuments(r io.Reader, fn func(Document) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var buf bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if buf.Len() == 0 && len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		if string(line) != "}" {
			continue
		}
		doc, err := DecodeDocument(buf.Bytes())
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		buf.Reset()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) > 0 {
		return fmt.Errorf("read documents: trailing partial document: %w", errMalformed)
	}
	return nil
}
