package fieldz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func newSyncCollector(t *testing.T) *Collector {
	t.Helper()
	c := NewCollector("test", 16)
	c.SetSyncMode(true)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEmitterNestedScenario(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create("outer", Metadata{Target: "demo", Name: "outer", Level: LevelInfo}, Int("datum", 0)))
	require.NoError(t, r.Create("inner", Metadata{Target: "demo", Name: "inner", Level: LevelDebug}, Int("ipsum", 1)))

	sink := newSyncCollector(t)
	e := NewEmitter(r, sink)

	event := Event{Metadata: Metadata{Target: "demo", Name: "event main.go:19", Level: LevelInfo}}
	require.NoError(t, e.Emit(event, []SpanID{"outer", "inner"}))

	docs := sink.Export()
	require.Len(t, docs, 1)

	want := `{
  "target": "demo",
  "name": "event main.go:19",
  "level": "INFO",
  "fields": {},
  "spans": [
    {
      "target": "demo",
      "name": "outer",
      "level": "INFO",
      "fields": {
        "datum": 0
      }
    },
    {
      "target": "demo",
      "name": "inner",
      "level": "DEBUG",
      "fields": {
        "ipsum": 1
      }
    }
  ]
}`
	assert.Equal(t, want, string(docs[0]))
}

func TestEmitterThreeLevelsRootFirst(t *testing.T) {
	r := NewRegistry()
	for _, id := range []SpanID{"root", "middle", "leaf"} {
		require.NoError(t, r.Create(id, Metadata{Target: "t", Name: string(id), Level: LevelTrace}, String("at", string(id))))
	}
	e := NewEmitter(r, newSyncCollector(t))

	doc, err := e.Build(Event{Metadata: Metadata{Name: "e"}}, []SpanID{"root", "middle", "leaf"})
	require.NoError(t, err)

	require.Len(t, doc.Spans, 3)
	assert.Equal(t, "root", doc.Spans[0].Name)
	assert.Equal(t, "middle", doc.Spans[1].Name)
	assert.Equal(t, "leaf", doc.Spans[2].Name)
}

func TestEmitterOutsideAnySpan(t *testing.T) {
	e := NewEmitter(NewRegistry(), newSyncCollector(t))

	doc, err := e.Build(Event{Metadata: Metadata{Name: "e"}, Fields: []Field{Bool("ok", true)}}, nil)
	require.NoError(t, err)
	data, err := EncodeDocument(doc)
	require.NoError(t, err)

	v, err := fastjson.ParseBytes(data)
	require.NoError(t, err)
	spans := v.Get("spans")
	require.NotNil(t, spans)
	assert.Equal(t, fastjson.TypeArray, spans.Type(), "spans must be an array, not null")
	assert.Empty(t, v.GetArray("spans"))
	assert.True(t, v.GetBool("fields", "ok"))
}

func TestEmitterEventFieldsLastWriteWins(t *testing.T) {
	e := NewEmitter(NewRegistry(), newSyncCollector(t))

	doc, err := e.Build(Event{Fields: []Field{Int("n", 1), Int("n", 2)}}, nil)
	require.NoError(t, err)
	v, ok := doc.Fields.Get("n")
	require.True(t, ok)
	assert.Equal(t, Int64Value(2), v)
}

// Recording a field twice on a span leaves one key with the second value.
func TestEmitterDuplicateSpanRecord(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create("s", testMeta))
	require.NoError(t, r.Record("s", Int("x", 1)))
	require.NoError(t, r.Record("s", Int("x", 2)))

	sink := newSyncCollector(t)
	require.NoError(t, NewEmitter(r, sink).Emit(Event{}, []SpanID{"s"}))

	docs, err := sink.ExportDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Len(t, docs[0].Spans, 1)
	assert.True(t, docs[0].Spans[0].Fields.Equal(FieldsOf(Int("x", 2))))
}

func TestEmitterErrorVersusDebug(t *testing.T) {
	err := errors.New("disk full")
	sink := newSyncCollector(t)
	e := NewEmitter(NewRegistry(), sink)

	require.NoError(t, e.Emit(Event{Fields: []Field{Err("err", err), Debug("dbg", err)}}, nil))

	raw := sink.Export()
	require.Len(t, raw, 1)
	v, perr := fastjson.ParseBytes(raw[0])
	require.NoError(t, perr)
	assert.Equal(t, "disk full", string(v.GetStringBytes("fields", "err")))
	assert.Contains(t, string(v.GetStringBytes("fields", "dbg")), "errorString")
}

func TestEmitterUnknownSpan(t *testing.T) {
	sink := newSyncCollector(t)
	e := NewEmitter(NewRegistry(), sink)

	err := e.Emit(Event{Metadata: Metadata{Name: "e"}}, []SpanID{"ghost"})
	assert.ErrorIs(t, err, ErrSpanNotFound)
	assert.Equal(t, 0, sink.Count(), "nothing is written for a failed build")
}

func TestEmitterSinkFailure(t *testing.T) {
	sink := NewWriterSink(failingWriter{})
	e := NewEmitter(NewRegistry(), sink)

	err := e.Emit(Event{}, nil)
	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, errWriteFailed)
}

// Every capturable kind survives encode and decode.
func TestDocumentRoundTrip(t *testing.T) {
	doc := Document{
		Target: "t",
		Name:   "e",
		Level:  LevelWarn,
		Fields: FieldsOf(
			Float64("f", 2.5),
			Float64("whole", 3),
			Float64("zero", 0),
			Float64("wide", 1e20),
			Float64("exp", 1e21),
			Int64("i", -9),
			Uint64("u", 1<<63),
			I128("big", Int128{Hi: -5}),
			U128("huge", Uint128{Hi: 3, Lo: 4}),
			Bool("b", false),
			String("s", "<tag> & more"),
		),
		Spans: []SpanDocument{{Target: "t", Name: "s", Level: LevelError}},
	}

	data, err := EncodeDocument(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"<tag> & more"`)

	got, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.Target, got.Target)
	assert.Equal(t, doc.Level, got.Level)
	assert.True(t, doc.Fields.Equal(got.Fields), "fields differ")
	for _, k := range []string{"f", "whole", "zero", "wide", "exp"} {
		v, _ := got.Fields.Get(k)
		assert.Equal(t, KindFloat64, v.Kind(), k)
	}
	require.Len(t, got.Spans, 1)
	assert.Equal(t, 0, got.Spans[0].Fields.Len())
}

func TestEncodeDocumentDoesNotMutateInput(t *testing.T) {
	spans := []SpanDocument{{Name: "a"}}
	_, err := EncodeDocument(Document{Spans: spans})
	require.NoError(t, err)
	assert.Nil(t, spans[0].Fields)
}
