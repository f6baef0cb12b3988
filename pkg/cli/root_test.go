package cli_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/downfa11-org/go-streams/pkg/cli"
	"github.com/downfa11-org/go-streams/pkg/config"
	"github.com/downfa11-org/go-streams/pkg/stream"
	"github.com/downfa11-org/go-streams/pkg/stream/streamtest"
	"github.com/downfa11-org/go-streams/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, open cli.LogFactory, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand(open)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStreamctl_AgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	conn := []string{"--redis-host", mr.Host(), "--redis-port", mr.Port(), "--stream", "orders", "--group", "billing"}

	out, err := run(t, nil, append([]string{"create-group"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "created group billing on orders")

	out, err = run(t, nil, append([]string{"create-group"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = run(t, nil, append([]string{"publish", "--count", "3"}, conn...)...)
	require.NoError(t, err)
	ids := strings.Fields(out)
	require.Len(t, ids, 3)
	for _, id := range ids {
		_, err := stream.ParseID(id)
		assert.NoError(t, err)
	}

	out, err = run(t, nil, append([]string{"info"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "length: 3")

	out, err = run(t, nil, append([]string{"groups"}, conn...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "name: billing")
}

func TestStreamctl_Pending(t *testing.T) {
	l := streamtest.New()
	ctx := context.Background()
	require.NoError(t, l.CreateGroup(ctx, "my_stream", "my_group", stream.StartLatest, true))
	id := l.AppendRaw("my_stream", map[string]string{types.FieldPayload: "{}"})
	_, err := l.ReadGroup(ctx, stream.ReadGroupArgs{Stream: "my_stream", Group: "my_group", Consumer: "worker-9", Count: 1})
	require.NoError(t, err)

	out, err := run(t, func(_ *config.Config, _ *slog.Logger) (stream.Log, error) { return l, nil }, "pending", "--limit", "5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], id)
	assert.Contains(t, lines[1], "worker-9")
}

func TestStreamctl_InvalidConfig(t *testing.T) {
	opened := false
	_, err := run(t, func(_ *config.Config, _ *slog.Logger) (stream.Log, error) {
		opened = true
		return streamtest.New(), nil
	}, "info", "--batch-size", "0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "consumer_batch_size")
	assert.False(t, opened, "no broker call before configuration is valid")
}
