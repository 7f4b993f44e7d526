package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/tuskrelay/internal/core"
)

type echoCommand struct {
	name string
	err  error
	args []string
}

func (c *echoCommand) Name() string        { return c.name }
func (c *echoCommand) Description() string { return "echo " + c.name }
func (c *echoCommand) Usage() []string     { return []string{"<words...>"} }

func (c *echoCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	c.args = args
	if c.err != nil {
		return "", c.err
	}
	return sessionID + ":" + c.name, nil
}

func TestRouter_Execute(t *testing.T) {
	echo := &echoCommand{name: "echo"}
	broken := &echoCommand{name: "broken", err: errors.New("boom")}
	r := New([]core.Command{echo, broken})
	ctx := context.Background()

	t.Run("plain text is not a command", func(t *testing.T) {
		out, handled := r.Execute(ctx, "s1", "hello there")
		assert.False(t, handled)
		assert.Empty(t, out)
	})

	t.Run("dispatches with arguments", func(t *testing.T) {
		out, handled := r.Execute(ctx, "s1", "/echo a  b")
		require.True(t, handled)
		assert.Equal(t, "s1:echo", out)
		assert.Equal(t, []string{"a", "b"}, echo.args)
	})

	t.Run("unknown command", func(t *testing.T) {
		out, handled := r.Execute(ctx, "s1", "/nope")
		require.True(t, handled)
		assert.Contains(t, out, "Unknown command: /nope")
	})

	t.Run("errors are rendered", func(t *testing.T) {
		out, handled := r.Execute(ctx, "s1", "/broken")
		require.True(t, handled)
		assert.Contains(t, out, "boom")
	})

	t.Run("help lists usages", func(t *testing.T) {
		out, handled := r.Execute(ctx, "s1", "/help")
		require.True(t, handled)
		assert.Contains(t, out, "/broken")
		assert.Contains(t, out, "`/echo <words...>`")
	})
}

func TestRouter_ListCommandsSorted(t *testing.T) {
	r := New([]core.Command{&echoCommand{name: "zeta"}, &echoCommand{name: "alpha"}})

	cmds := r.ListCommands()
	require.Len(t, cmds, 2)
	assert.Equal(t, "alpha", cmds[0].Name())
	assert.Equal(t, "zeta", cmds[1].Name())
}

func TestUsageError(t *testing.T) {
	err := usageError(&echoCommand{name: "echo"})
	assert.EqualError(t, err, "usage: /echo <words...>")
}
