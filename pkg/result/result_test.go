package result

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"report-intake-go/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertEnvelope[T any](t *testing.T, r Result[T]) {
	t.Helper()
	assert.Equal(t, r.Success, r.Error == nil, "success <=> error == nil")
	assert.Equal(t, !r.Success, r.Data == nil, "failure <=> data == nil")
}

func TestOkAndFail(t *testing.T) {
	ok := Ok(42)
	assertEnvelope(t, ok)
	assert.Equal(t, 42, ok.Value())

	fail := Fail[int](errs.New(errs.NotFound, "missing"))
	assertEnvelope(t, fail)
	assert.Equal(t, errs.NotFound, fail.Kind())

	nilFail := Fail[int](nil)
	assertEnvelope(t, nilFail)
	assert.Equal(t, errs.SystemFailure, nilFail.Kind())
}

func TestMap(t *testing.T) {
	r := Map(Ok(2), func(v int) string { return strconv.Itoa(v * 2) })
	assert.Equal(t, "4", r.Value())

	failed := Map(Fail[int](errs.New(errs.Timeout, "late")), func(v int) string {
		t.Fatal("must not be called on failure")
		return ""
	})
	assertEnvelope(t, failed)
	assert.Equal(t, errs.Timeout, failed.Kind())
	assert.Equal(t, "late", failed.Error.Message)
}

func TestChain_ShortCircuits(t *testing.T) {
	calls := 0
	step := func(v int) Result[int] {
		calls++
		if v > 1 {
			return Fail[int](errs.New(errs.Validation, "too big"))
		}
		return Ok(v + 1)
	}

	r := Chain(Chain(Chain(Ok(0), step), step), step)
	assert.Equal(t, 3, calls)
	assert.Equal(t, errs.Validation, r.Kind())

	calls = 0
	r = Chain(Fail[int](errors.New("boom")), step)
	assert.Equal(t, 0, calls)
	assert.Equal(t, errs.SystemFailure, r.Kind())
}

func TestAttempt_PreservesClassification(t *testing.T) {
	r := Attempt(func() (string, error) {
		return "", fmt.Errorf("rewrapped: %w", errs.New(errs.PermissionDenied, "nope").WithDetail("bucket", "b1"))
	})
	require.False(t, r.Success)
	assert.Equal(t, errs.PermissionDenied, r.Error.Kind)
	assert.Equal(t, "b1", r.Error.Details["bucket"])
}

func TestAttempt_RecoversPanic(t *testing.T) {
	r := Attempt(func() (int, error) { panic("kaboom") })
	assertEnvelope(t, r)
	assert.Equal(t, errs.SystemFailure, r.Kind())
	assert.Contains(t, r.Error.Message, "kaboom")

	r = Attempt(func() (int, error) { panic(errs.New(errs.DataIntegrity, "corrupt")) })
	assert.Equal(t, errs.DataIntegrity, r.Kind())
}

func TestAttemptAsync(t *testing.T) {
	r := <-AttemptAsync(context.Background(), func(context.Context) (int, error) { return 7, nil })
	assert.Equal(t, 7, r.Value())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r = <-AttemptAsync(ctx, func(ctx context.Context) (int, error) {
		time.Sleep(time.Second)
		return 1, nil
	})
	assert.Equal(t, errs.Timeout, r.Kind())
}

func TestUnwrap(t *testing.T) {
	v, err := Ok("x").Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = Fail[string](errs.New(errs.NotFound, "gone")).Unwrap()
	assert.True(t, errs.IsKind(err, errs.NotFound))
}
