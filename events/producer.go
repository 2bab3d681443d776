package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"assetExtractor/models"
)

// StatusEvent is published on every task status transition so downstream
// consumers can follow task progress without polling the API.
type StatusEvent struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

type Publisher interface {
	PublishStatusChange(ctx context.Context, taskID string, status models.TaskStatus, errorMessage string) error
	Close() error
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaPublisher(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &kafkaPublisher{producer: p, topic: topic}, nil
}

func (p *kafkaPublisher) PublishStatusChange(ctx context.Context, taskID string, status models.TaskStatus, errorMessage string) error {
	event := StatusEvent{
		TaskID:       taskID,
		Status:       string(status),
		ErrorMessage: errorMessage,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(taskID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

// NewNoopPublisher is used when no kafka brokers are configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

type noopPublisher struct{}

func (noopPublisher) PublishStatusChange(context.Context, string, models.TaskStatus, string) error {
	return nil
}

func (noopPublisher) Close() error { return nil }
