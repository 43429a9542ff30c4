// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/grailbio/respire/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	e1 := errors.E(errors.NotExist, "opening file", err)
	assert.Equal(t, "opening file: resource does not exist: open /dev/notexist: no such file or directory", e1.Error())
	e2 := errors.E(err)
	assert.Equal(t, "resource does not exist: open /dev/notexist: no such file or directory", e2.Error())
	for _, e := range []error{e1, e2} {
		assert.True(t, errors.Is(errors.NotExist, e), "error %v should be NotExist", e)
	}
}

func TestErrorChaining(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	err = errors.E("failed to open file", err)
	err = errors.E(errors.Fatal, "cannot proceed", err)
	assert.Equal(t,
		"cannot proceed: resource does not exist (fatal):\n\tfailed to open file: open /dev/notexist: no such file or directory",
		err.Error())
}

func TestMessage(t *testing.T) {
	for _, c := range []struct {
		err     error
		message string
	}{
		{errors.E("hello"), "hello"},
		{errors.E("hello", "world"), "hello world"},
	} {
		assert.Equal(t, c.message, c.err.Error())
	}
}

func TestStdInterop(t *testing.T) {
	tests := []struct {
		name    string
		makeErr func() error
		kind    errors.Kind
		target  error
	}{
		{
			"not exist",
			func() error {
				_, err := os.Open("/dev/notexist")
				return err
			},
			errors.NotExist,
			os.ErrNotExist,
		},
		{
			"canceled",
			func() error {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				<-ctx.Done()
				return ctx.Err()
			},
			errors.Canceled,
			context.Canceled,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.makeErr()
			for errIdx, e := range []error{
				err,
				errors.E(err),
				errors.E(err, "wrapped", errors.Fatal),
			} {
				t.Run(strconv.Itoa(errIdx), func(t *testing.T) {
					assert.True(t, errors.Is(test.kind, e))
					assert.True(t, goerrors.Is(e, test.target))
					// e should not match a differently-wrapped target.
					assert.False(t, goerrors.Is(e, fmt.Errorf("%w", test.target)))
				})
			}
		})
	}
}

// TestEKindDeterminism ensures that errors.E's Kind detection (based on the
// cause chain of the input error) is deterministic: if the input error has
// multiple causes (according to goerrors.Is), E chooses one consistently, so
// that code dispatching on Kind behaves predictably.
func TestEKindDeterminism(t *testing.T) {
	const n = 100
	numKind := make(map[errors.Kind]int)
	for i := 0; i < n; i++ {
		err := errors.E(
			fmt.Errorf("%w",
				errors.E("canceled", errors.Canceled,
					fmt.Errorf("%w", os.ErrNotExist))))
		assert.True(t, goerrors.Is(err, os.ErrNotExist))
		assert.True(t, goerrors.Is(err, context.Canceled))
		numKind[err.(*errors.Error).Kind]++
	}
	assert.Len(t, numKind, 1)
	assert.Equal(t, n, numKind[errors.Canceled])
}

func TestMatch(t *testing.T) {
	e1 := errors.E(errors.Invalid, "bad input")
	e2 := errors.E(errors.Invalid, "bad input")
	e3 := errors.E(errors.Exists, "bad input")
	assert.True(t, errors.Match(e1, e2))
	assert.False(t, errors.Match(e1, e3))
}

func TestVisit(t *testing.T) {
	inner := goerrors.New("root cause")
	err := errors.E("outer", errors.E("middle", inner))
	var seen []string
	errors.Visit(err, func(e error) {
		if e != nil {
			seen = append(seen, e.Error())
		}
	})
	assert.GreaterOrEqual(t, len(seen), 2)
}
