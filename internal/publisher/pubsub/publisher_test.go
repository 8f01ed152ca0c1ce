package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type notice struct {
	RunID string `json:"run_id"`
}

func (n notice) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID}
}

func newFakeServer(t *testing.T) (*pstest.Server, option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, option.WithGRPCConn(conn)
}

func TestPublisher_PublishesJSONWithAttributes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv, opt := newFakeServer(t)

	client, err := pubsub.NewClient(ctx, "proj", opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	_, err = client.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub, err := New(client, "runs")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })

	id, err := pub.Publish(ctx, "", notice{RunID: "run-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool { return len(srv.Messages()) == 1 }, 5*time.Second, 10*time.Millisecond)
	msg := srv.Messages()[0]
	var got notice
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, "run-1", msg.Attributes["run_id"])
}

func TestOpen_MissingTopic(t *testing.T) {
	t.Parallel()

	_, opt := newFakeServer(t)
	_, err := Open(context.Background(), Config{ProjectID: "proj", Topic: "absent"}, opt)
	require.Error(t, err)

	_, err = Open(context.Background(), Config{})
	require.Error(t, err)
}

func TestOpen_ExistingTopic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, opt := newFakeServer(t)
	admin, err := pubsub.NewClient(ctx, "proj", opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(ctx, "runs")
	require.NoError(t, err)

	pub, err := Open(ctx, Config{ProjectID: "proj", Topic: "runs"}, opt)
	require.NoError(t, err)
	_, err = pub.Publish(ctx, "runs", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestNew_RequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "runs")
	require.Error(t, err)
}
