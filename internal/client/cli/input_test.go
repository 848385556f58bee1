package cli

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rdr(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestGetSimpleText(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("hello world\n"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	var out bytes.Buffer
	got, err := GetSimpleText(rdr("lastline"), "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)

	_, err = GetSimpleText(rdr(""), "Name?", &out)
	require.Error(t, err)
}

func TestGetNumber(t *testing.T) {
	var out bytes.Buffer

	v, err := GetNumber(rdr("12.5\n"), "Calories", &out, 0)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = GetNumber(rdr("3,25\n"), "Fat", &out, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	v, err = GetNumber(rdr("\n"), "Protein", &out, 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	_, err = GetNumber(rdr("lots\n"), "Carbs", &out, 0)
	require.ErrorIs(t, err, ErrNotANumber)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "ключ…", truncate("ключевой", 5))
}
