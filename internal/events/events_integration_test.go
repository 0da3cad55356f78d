//go:build integration

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kass/go-eco-route/pkg/models"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

const testTopic = "routes.computed"

func setupKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             testTopic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
	time.Sleep(time.Second)

	return brokers
}

func TestKafkaPublisher(t *testing.T) {
	brokers := setupKafka(t)
	logger, _ := zap.NewDevelopment()

	publisher := NewKafkaPublisher(brokers, testTopic, logger)
	defer func() { _ = publisher.Close() }()

	sent := RoutesComputed{
		CacheKey:    "txwwnd9:txwy9h5:air:2024-01-15T08:00:00Z",
		Start:       models.Location{Lat: 43.2567, Lng: 76.9286},
		End:         models.Location{Lat: 43.3526, Lng: 77.0405},
		Profile:     models.PreferenceAir,
		Mode:        "estimated",
		Candidates:  3,
		Recommended: "route-fallback-1",
	}
	require.NoError(t, publisher.PublishRoutesComputed(context.Background(), sent))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     fmt.Sprintf("test-assert-%s", uuid.New().String()[:8]),
		Topic:       testTopic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	require.Equal(t, sent.CacheKey, string(msg.Key))

	ce, err := ParseCloudEvent(msg.Value)
	require.NoError(t, err)
	require.Equal(t, TypeRoutesComputed, ce.Type)

	var got RoutesComputed
	require.NoError(t, json.Unmarshal(ce.Data, &got))
	require.Equal(t, sent.Recommended, got.Recommended)
	require.Equal(t, sent.Start, got.Start)
}
