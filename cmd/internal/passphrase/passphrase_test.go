package passphrase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("ECOM_TEST_PASS", "correct horse")
	src := NewSource("ECOM_TEST_PASS", "wallet")
	src.isTerminal = func(int) bool {
		t.Fatalf("terminal must not be consulted when the variable is set")
		return false
	}
	value, err := src.Get()
	require.NoError(t, err)
	require.Equal(t, "correct horse", value)
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	t.Setenv("ECOM_TEST_PASS", "   ")
	_, err := NewSource("ECOM_TEST_PASS", "wallet").Get()
	require.Error(t, err)
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("ECOM_TEST_PASS_UNSET", "wallet")
	src.isTerminal = func(int) bool { return false }
	_, err := src.Get()
	require.ErrorContains(t, err, "ECOM_TEST_PASS_UNSET")
}

func TestSourceConfirmation(t *testing.T) {
	answers := [][]byte{[]byte("first"), []byte("second")}
	src := NewSource("", "wallet").WithConfirmation()
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) {
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	_, err := src.Get()
	require.EqualError(t, err, "passphrases do not match")

	// The result is cached, including failures.
	_, err = src.Get()
	require.Error(t, err)
}

func TestSourcePromptError(t *testing.T) {
	src := NewSource("", "")
	src.isTerminal = func(int) bool { return true }
	src.readPassword = func(int) ([]byte, error) { return nil, errors.New("eof") }
	_, err := src.Get()
	require.ErrorContains(t, err, "failed to read passphrase")
}
