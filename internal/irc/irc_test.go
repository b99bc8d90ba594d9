package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	m, err := Parse([]byte(":alice!a@example.net privmsg #Go :hello there"))
	require.NoError(t, err)
	assert.Equal(t, "PRIVMSG", m.Command)
	assert.Equal(t, "alice", m.Nick())
	assert.Equal(t, []string{"#Go", "hello there"}, m.Params)
	assert.Equal(t, "", m.Param(5))

	m, err = Parse([]byte("PING :irc.example.net"))
	require.NoError(t, err)
	assert.Equal(t, "PING", m.Command)
	assert.Equal(t, "irc.example.net", m.Param(0))
	assert.Equal(t, "", m.Nick())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)
	_, err = Parse([]byte(":onlyprefix"))
	assert.Error(t, err)
}

func TestLine(t *testing.T) {
	assert.Equal(t, "NICK bot_", string(Line("NICK", "bot_")))
	assert.Equal(t, "PONG :irc.example.net", string(LineTrailing("PONG", "irc.example.net")))
	assert.Equal(t, "USER bot 0 * :The Bot", string(LineTrailing("USER", "bot", "0", "*", "The Bot")))
	assert.Equal(t, "JOIN #a :key", string(LineTrailing("JOIN", "#a", "key")))
	assert.Equal(t, "PRIVMSG NickServ :IDENTIFY pw", string(Line("PRIVMSG", "NickServ", "IDENTIFY pw")))
	assert.Equal(t, "QUIT", string(Line("QUIT")))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "#foo", Fold("#Foo"))
	assert.Equal(t, "{}|^", Fold("[]\\~"))
	assert.True(t, EqualFold("Nick[away]", "nick{AWAY}"))
	assert.False(t, EqualFold("#foo", "#fo0"))
}

func TestFoldMap(t *testing.T) {
	fm := NewFoldMap[int]()
	fm.Set("#Foo", 1)
	v, ok := fm.Get("#foo")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	fm.Set("#FOO", 2)
	assert.Equal(t, 1, fm.Len())
	name, _ := fm.Name("#foo")
	assert.Equal(t, "#FOO", name)

	fm.Set("#x[1]", 3)
	assert.True(t, fm.Has("#X{1}"))
	assert.Equal(t, []string{"#FOO", "#x[1]"}, fm.Names())

	assert.True(t, fm.Delete("#x{1}"))
	assert.False(t, fm.Delete("#x{1}"))
	assert.Equal(t, 1, fm.Len())
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("001"))
	assert.True(t, IsNumeric("433"))
	assert.False(t, IsNumeric("PRIVMSG"))
	assert.False(t, IsNumeric("01"))
}
