// ABOUTME: Tests for the SmartREST tokenizer, line encoder and template reader.
// ABOUTME: Covers quoting, blank lines, CRLF input and cursor reset.

package smartrest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_MultipleRecords(t *testing.T) {
	p := NewParser("20,XID1\n800,1,OBJ1\n")

	r := p.Next()
	assert.Equal(t, []string{"20", "XID1"}, r.Values())
	assert.Equal(t, "20", r.Code())

	r = p.Next()
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, "OBJ1", r.Value(2))

	assert.Equal(t, 0, p.Next().Len())
	assert.Equal(t, 0, p.Next().Len())
}

func TestParser_QuotedFields(t *testing.T) {
	p := NewParser(`211,"hello, world","say ""hi""", plain ` + "\n")

	r := p.Next()
	require.Equal(t, 4, r.Len())
	assert.Equal(t, "hello, world", r.Value(1))
	assert.Equal(t, `"hello, world"`, r[1].Raw)
	assert.Equal(t, `say "hi"`, r.Value(2))
	assert.Equal(t, "plain", r.Value(3))
	assert.Equal(t, " plain ", r[3].Raw)
}

func TestParser_QuotedNewline(t *testing.T) {
	p := NewParser("1,\"a\nb\"\n2\n")

	r := p.Next()
	assert.Equal(t, "a\nb", r.Value(1))
	assert.Equal(t, "2", p.Next().Code())
}

func TestParser_SkipsBlankLinesAndCRLF(t *testing.T) {
	p := NewParser("\r\n40,,unknown\r\n\r\n\n20,X\r\n")

	r := p.Next()
	assert.Equal(t, []string{"40", "", "unknown"}, r.Values())
	assert.Equal(t, []string{"20", "X"}, p.Next().Values())
	assert.Nil(t, p.Next())
}

func TestParser_NoTrailingNewline(t *testing.T) {
	p := NewParser("50")
	assert.Equal(t, []string{"50"}, p.Next().Values())
	assert.Nil(t, p.Next())
}

func TestParser_Reset(t *testing.T) {
	p := NewParser("1\n2\n")
	assert.Equal(t, "1", p.Next().Code())

	p.Reset("9\n")
	assert.Equal(t, "9", p.Next().Code())
	assert.Nil(t, p.Next())
}

func TestRecord_ValueOutOfRange(t *testing.T) {
	var r Record
	assert.Equal(t, "", r.Value(0))
	assert.Equal(t, "", r.Value(-1))
	assert.Equal(t, "", r.Code())
}

func TestLine(t *testing.T) {
	assert.Equal(t, "300,device-1", Line("300", "device-1"))
	assert.Equal(t, `100,"a,b","x ""y"""`, Line("100", "a,b", `x "y"`))
	assert.Equal(t, "", Line())

	// Round trip through the parser
	r := NewParser(Line("1", "a,b", "c\nd", `"q"`)).Next()
	assert.Equal(t, []string{"1", "a,b", "c\nd", `"q"`}, r.Values())
}

func TestContextLine(t *testing.T) {
	assert.Equal(t, "15,XID1", SelectContext("XID1"))
	assert.True(t, IsContextLine("15,XID1"))
	assert.False(t, IsContextLine("150,1"))
	assert.False(t, IsContextLine("100,15"))
}

func TestPriority_Has(t *testing.T) {
	p := PriorityBuffer | PriorityAltXID
	assert.True(t, p.Has(PriorityBuffer))
	assert.True(t, p.Has(PriorityAltXID))
	assert.False(t, PriorityBuffer.Has(PriorityAltXID))
	assert.Equal(t, Priority(1), PriorityBuffer)
	assert.Equal(t, Priority(2), PriorityAltXID)
}

func TestReadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srtemplate.txt")
	content := `
# device template
helloworld_v1

10,100,POST,/measurement/measurements,application/json,,%%,NOW UNSIGNED,"{}"
# trailing comment
10,101,POST,/alarm/alarms,application/json,,%%,NOW,"{}"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	version, body, err := ReadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "helloworld_v1", version)
	assert.Equal(t,
		"10,100,POST,/measurement/measurements,application/json,,%%,NOW UNSIGNED,\"{}\"\n"+
			"10,101,POST,/alarm/alarms,application/json,,%%,NOW,\"{}\"",
		body)
}

func TestReadTemplate_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("# nothing\n\n"), 0644))

	_, _, err := ReadTemplate(path)
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestReadTemplate_Missing(t *testing.T) {
	_, _, err := ReadTemplate(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
