package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(cmd Command) []string {
	out := make([]string, len(cmd.Words))
	for i, w := range cmd.Words {
		out[i] = w.Text
	}
	return out
}

func TestParseSplitsCommandsAndWords(t *testing.T) {
	cmds, err := Parse(`
# leading comment
set a 1; set b {two words}
puts "x $a [list 1 2]"
`)
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, []string{"set", "a", "1"}, words(cmds[0]))
	assert.Equal(t, []string{"set", "b", "two words"}, words(cmds[1]))
	assert.Equal(t, wordBraced, cmds[1].Words[2].kind)
	assert.Equal(t, []string{"puts", "x $a [list 1 2]"}, words(cmds[2]))
	assert.Equal(t, wordQuoted, cmds[2].Words[1].kind)
	assert.Equal(t, 4, cmds[2].Line)
	assert.Equal(t, `puts "x $a [list 1 2]"`, cmds[2].Source)
}

func TestParseKeepsBracketsTogether(t *testing.T) {
	cmds, err := Parse(`set x [lindex {a b} 1]`)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"set", "x", "[lindex {a b} 1]"}, words(cmds[0]))
}

func TestParseNestedBraces(t *testing.T) {
	cmds, err := Parse("proc f {} {\n  set a {b {c}}\n}")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "\n  set a {b {c}}\n", cmds[0].Words[3].Text)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"set a {b",
		`set a "b`,
		"set a [b",
		"set a {b}c",
	} {
		_, err := Parse(src)
		var se *SyntaxError
		assert.ErrorAs(t, err, &se, src)
	}
}

func TestIncomplete(t *testing.T) {
	_, err := Parse("proc f {} {\n  set x 1")
	assert.True(t, Incomplete(err))
	_, err = Parse("puts [list a")
	assert.True(t, Incomplete(err))
	_, err = Parse("set a {b}c")
	assert.False(t, Incomplete(err))
	assert.False(t, Incomplete(nil))
}

func TestFormatAndSplitList(t *testing.T) {
	items := []string{"plain", "two words", "", "a{b", "$x"}
	formatted := FormatList(items)
	assert.Equal(t, `plain {two words} {} a\{b {$x}`, formatted)

	back, err := SplitList(formatted)
	require.NoError(t, err)
	assert.Equal(t, items, back)

	empty, err := SplitList("  ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
