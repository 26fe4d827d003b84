package records

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
)

func TestParseLevel(t *testing.T) {
	for _, in := range []string{"Info", "info", " WARNING ", "exception", "Failed"} {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.True(t, lvl.Valid())
	}

	_, err := ParseLevel("Debug")
	assert.ErrorIs(t, err, ErrUnknownLevel)

	lvls, err := ParseLevels([]string{"info", "Failed"})
	require.NoError(t, err)
	assert.Equal(t, []Level{LevelInfo, LevelFailed}, lvls)

	_, err = ParseLevels([]string{"info", "trace"})
	assert.Error(t, err)
}

func TestLevelIsBoundToType(t *testing.T) {
	assert.Equal(t, LevelInfo, NewInfo("svc", "GET /", "{}").Level())
	assert.Equal(t, LevelWarning, NewWarning("svc", "GET /", "m", "").Level())
	assert.Equal(t, LevelException, NewException("svc", "GET /", "m", "").Level())
	assert.Equal(t, LevelFailed, NewFailed("svc", "x", "m", "").Level())
	assert.Equal(t, LevelFailed, NewFallback(NewInfo("svc", "GET /", ""), errors.New("x")).Level())
}

func TestNewMetaAssignsDistinctIDs(t *testing.T) {
	a := NewMeta("svc")
	b := NewMeta("svc")
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
}

func TestValidateAcceptsWellFormedRecords(t *testing.T) {
	for _, r := range []Record{
		NewInfo("BooksController.List", "GET /books", `{"success":true}`),
		NewWarning("BooksController.Get", "GET /books/1", "Book not found", `{"success":false}`),
		NewException("LoansController.Create", "POST /loans", "nil pointer", "goroutine 1"),
		NewFailed("LoansController.Create", "<html>", "response was not valid structured data", ""),
		NewFallback(NewInfo("svc", "GET /", ""), errors.New("broker down")),
	} {
		assert.NoError(t, Validate(r), "%T", r)
	}
}

func TestValidateReportsEveryViolation(t *testing.T) {
	w := Warning{
		Meta:           Meta{ServiceName: strings.Repeat("s", MaxServiceName+1)},
		Request:        "",
		WarningMessage: strings.Repeat("m", MaxSummary+1),
		Response:       strings.Repeat("r", MaxText+1),
	}

	err := Validate(w)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, LevelWarning, verr.Level)
	for _, field := range []string{"id", "createdAt", "serviceName", "request", "warningMessage", "response"} {
		assert.True(t, verr.Has(field), "expected violation for %s", field)
	}
	assert.Contains(t, err.Error(), "<no id>")
	assert.Contains(t, err.Error(), "warningMessage exceeds 1000 characters")
}

func TestValidateCountsCharactersNotBytes(t *testing.T) {
	info := NewInfo(strings.Repeat("é", MaxServiceName), "GET /", "")
	assert.NoError(t, Validate(info))

	info.ServiceName += "é"
	assert.Error(t, Validate(info))
}

func TestValidateInfoResponseUnbounded(t *testing.T) {
	info := NewInfo("svc", "GET /export", strings.Repeat("x", 10*MaxText))
	assert.NoError(t, Validate(info))
}

func TestValidateNil(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrUnsupported)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", Clip("abc", 5))
	assert.Equal(t, "ab", Clip("abc", 2))
	assert.Equal(t, "", Clip("abc", 0))
	assert.Equal(t, "héé", Clip("hééllo", 3))
	assert.Equal(t, "日本", Clip("日本語", 2))
}

func TestNewFallbackEmbedsOriginal(t *testing.T) {
	original := NewWarning("BooksController.Get", "GET /books/1", "Book not found", `{"success":false}`)
	fb := NewFallback(original, errors.New("connection refused"))

	failed := fb.Failed()
	assert.Equal(t, "BooksController.Get", failed.ServiceName)
	assert.Equal(t, "publish failed: connection refused", failed.FailedMessage)
	assert.NotEqual(t, original.ID, failed.ID)

	decoded, err := Decode([]byte(failed.OriginalMessage))
	require.NoError(t, err)
	assert.Equal(t, original.ID, decoded.Header().ID)
	assert.Equal(t, LevelWarning, decoded.Level())
}

type stackErr struct{}

func (stackErr) Error() string { return "boom" }

func (stackErr) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprint(s, "boom\nmain.publish\n\tpublisher.go:42")
		return
	}
	_, _ = fmt.Fprint(s, "boom")
}

func TestNewFallbackCapturesDetailedReason(t *testing.T) {
	fb := NewFallback(NewInfo("svc", "GET /", ""), stackErr{})
	assert.Contains(t, fb.Failed().StackTrace, "publisher.go:42")

	plain := NewFallback(NewInfo("svc", "GET /", ""), errors.New("plain"))
	assert.Empty(t, plain.Failed().StackTrace)
}

func TestNewFallbackAlwaysValidates(t *testing.T) {
	original := Info{
		Meta:     Meta{ID: "x", CreatedAt: time.Now()},
		Request:  strings.Repeat("q", 3*MaxSummary),
		Response: strings.Repeat("r", 5*MaxText),
	}
	fb := NewFallback(original, errors.New(strings.Repeat("e", 2*MaxSummary)))

	require.NoError(t, Validate(fb))
	assert.Equal(t, UnknownService, fb.Header().ServiceName)
	assert.Len(t, []rune(fb.Failed().OriginalMessage), MaxText)
	assert.Len(t, []rune(fb.Failed().FailedMessage), MaxSummary)
}

func TestEncodeProducesFlatDocument(t *testing.T) {
	w := NewWarning("BooksController.Get", "GET /books/1", "Book not found", `{"success":false}`)
	payload, err := Encode(w)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, jsoncodec.Unmarshal(payload, &doc))

	assert.Equal(t, "Warning", doc["level"])
	assert.Equal(t, w.ID, doc["id"])
	assert.Equal(t, "BooksController.Get", doc["serviceName"])
	assert.Equal(t, "Book not found", doc["warningMessage"])
	assert.Contains(t, doc, "createdAt")
	assert.Contains(t, doc, "request")
	assert.Contains(t, doc, "response")
	assert.Len(t, doc, 7)
}

func TestEncodeFailedOmitsEmptyStack(t *testing.T) {
	payload, err := Encode(NewFailed("svc", "x", "m", ""))
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "stackTrace")

	payload, err = Encode(NewFallback(NewInfo("svc", "GET /", ""), errors.New("x")))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"level":"Failed"`)
}

func TestEncodeRejectsForeignRecord(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeRoundTripsEveryVariant(t *testing.T) {
	for _, r := range []Record{
		NewInfo("svc", "GET /books", `{"success":true}`),
		NewWarning("svc", "GET /books/1", "Book not found", `{"success":false}`),
		NewException("svc", "POST /loans", "boom", "trace"),
		NewFailed("svc", "<html>", "not json", "unexpected <"),
	} {
		payload, err := Encode(r)
		require.NoError(t, err)

		decoded, err := Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, r.Level(), decoded.Level())
		assert.Equal(t, r.Header().ID, decoded.Header().ID)
		assert.True(t, r.Header().CreatedAt.Equal(decoded.Header().CreatedAt))
	}
}

func TestPeekLevel(t *testing.T) {
	lvl, err := PeekLevel([]byte(`{"level":"Exception","id":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, LevelException, lvl)

	_, err = PeekLevel([]byte(`{"id":"1"}`))
	assert.ErrorIs(t, err, ErrMissingLevel)

	_, err = PeekLevel([]byte(`{"level":null}`))
	assert.ErrorIs(t, err, ErrMissingLevel)

	_, err = PeekLevel([]byte(`{"level":"Debug"}`))
	assert.ErrorIs(t, err, ErrUnknownLevel)

	_, err = PeekLevel([]byte(`{"level":3}`))
	assert.ErrorIs(t, err, ErrUnknownLevel)

	_, err = PeekLevel([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = PeekLevel([]byte(`["Info"]`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	exc, err := Encode(NewException("svc", "GET /", "boom", "trace"))
	require.NoError(t, err)

	mislabelled := strings.Replace(string(exc), `"level":"Exception"`, `"level":"Info"`, 1)
	_, err = Decode([]byte(mislabelled))

	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, LevelInfo, derr.Level)
}

func TestWithCreatedAt(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	for _, r := range []Record{
		NewInfo("svc", "GET /", ""),
		NewWarning("svc", "GET /", "m", ""),
		NewException("svc", "GET /", "m", ""),
		NewFailed("svc", "x", "m", ""),
		NewFallback(NewInfo("svc", "GET /", ""), errors.New("x")),
	} {
		restamped := WithCreatedAt(r, at)
		assert.True(t, restamped.Header().CreatedAt.Equal(at), "%T", r)
		assert.Equal(t, r.Header().ID, restamped.Header().ID)
		assert.False(t, r.Header().CreatedAt.Equal(at), "original must be untouched")
	}
}
