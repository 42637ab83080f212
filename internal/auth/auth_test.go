package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = Params{UserID: "1", TestID: "2", Score: "5"}

func TestSign_KnownVectors(t *testing.T) {
	assert.Equal(t, "user_id=1&test_id=2&score=5", CanonicalString(testParams))
	assert.Equal(t, "c1752208e796d5fbde32f0211bdbbf75", Sign(AlgorithmMD5, testParams, "secret"))
	assert.Equal(t,
		"7e4ad838e2f694d2de22467799a55d963cc76a017f9e869ddab4d07526543786",
		Sign(AlgorithmHMACSHA256, testParams, "secret"),
	)
}

func TestVerifier_Deterministic(t *testing.T) {
	v, err := NewVerifier(AlgorithmMD5, "secret")
	require.NoError(t, err)

	assert.Equal(t, v.Sign(testParams), v.Sign(testParams))
	assert.True(t, v.Verify(testParams, v.Sign(testParams)))
	assert.True(t, v.Verify(testParams, "C1752208E796D5FBDE32F0211BDBBF75"))
}

func TestVerifier_RejectsTamperedFields(t *testing.T) {
	for _, algorithm := range []Algorithm{AlgorithmMD5, AlgorithmHMACSHA256} {
		v, err := NewVerifier(algorithm, "secret")
		require.NoError(t, err)

		signature := v.Sign(testParams)

		testCases := []struct {
			name   string
			params Params
		}{
			{name: "user_id", params: Params{UserID: "9", TestID: "2", Score: "5"}},
			{name: "test_id", params: Params{UserID: "1", TestID: "9", Score: "5"}},
			{name: "score", params: Params{UserID: "1", TestID: "2", Score: "100"}},
		}

		for _, tc := range testCases {
			t.Run(string(algorithm)+"/"+tc.name, func(t *testing.T) {
				assert.False(t, v.Verify(tc.params, signature))
			})
		}
	}
}

func TestVerifier_RejectsEmptyAndForeignSignatures(t *testing.T) {
	v, err := NewVerifier(AlgorithmMD5, "secret")
	require.NoError(t, err)

	assert.False(t, v.Verify(testParams, ""))
	assert.False(t, v.Verify(testParams, "not-a-signature"))
	assert.False(t, v.Verify(testParams, Sign(AlgorithmMD5, testParams, "other")))
}

func TestVerifier_Rotation(t *testing.T) {
	v, err := NewVerifier(AlgorithmMD5, "new", "old")
	require.NoError(t, err)

	assert.True(t, v.Verify(testParams, Sign(AlgorithmMD5, testParams, "old")))
	assert.True(t, v.Verify(testParams, Sign(AlgorithmMD5, testParams, "new")))
	assert.Equal(t, Sign(AlgorithmMD5, testParams, "new"), v.Sign(testParams))
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := NewVerifier(AlgorithmMD5)
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewVerifier(AlgorithmMD5, "")
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewVerifier(AlgorithmMD5, "current", "")
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewVerifier("sha1", "secret")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestCanonicalValue(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
	}{
		{raw: `5`, want: "5"},
		{raw: ` 12 `, want: "12"},
		{raw: `"5"`, want: "5"},
		{raw: `null`, want: ""},
		{raw: ``, want: ""},
		{raw: `true`, want: "true"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, CanonicalValue(json.RawMessage(tc.raw)), "raw %q", tc.raw)
	}
}

func TestParseInteger(t *testing.T) {
	value, err := ParseInteger("score", json.RawMessage(`8`))
	require.NoError(t, err)
	assert.Equal(t, int64(8), value)

	value, err = ParseInteger("score", json.RawMessage(`-3`))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), value)

	for _, raw := range []string{``, `"8"`, `8.5`, `1e3`, `null`, `true`, `[]`, `-0`, `+1`} {
		_, err = ParseInteger("score", json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrValidation, "raw %q", raw)
	}
}

func TestSameValue(t *testing.T) {
	assert.True(t, SameValue(json.RawMessage(`1`), json.RawMessage(` 1`)))
	assert.False(t, SameValue(json.RawMessage(`1`), json.RawMessage(`"1"`)))
	assert.False(t, SameValue(json.RawMessage(`1`), json.RawMessage(`2`)))
	assert.False(t, SameValue(json.RawMessage(`1`), nil))
}
