package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
)

const DefaultTopic = "alumni.import.finished"

// ImportFinishedEvent is the payload published when an import reaches a terminal state.
type ImportFinishedEvent struct {
	JobID         string    `json:"job_id"`
	CollegeID     string    `json:"college_id"`
	CollegeName   string    `json:"college_name"`
	AdminUserID   string    `json:"admin_user_id"`
	Status        string    `json:"status"`
	TotalRows     int64     `json:"total_rows"`
	ProcessedRows int64     `json:"processed_rows"`
	FailedRows    int64     `json:"failed_rows"`
	Fatal         string    `json:"fatal,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func newEvent(n domain.ImportNotification, now time.Time) ImportFinishedEvent {
	return ImportFinishedEvent{
		JobID:         n.JobID,
		CollegeID:     n.CollegeID,
		CollegeName:   n.CollegeName,
		AdminUserID:   n.AdminUserID,
		Status:        string(n.Status),
		TotalRows:     n.TotalRows,
		ProcessedRows: n.ProcessedRows,
		FailedRows:    n.FailedRows,
		Fatal:         n.Fatal,
		OccurredAt:    now.UTC(),
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes import results keyed by college so one college's events stay ordered.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
		now:   time.Now,
	}, nil
}

func (n *KafkaNotifier) Notify(ctx context.Context, notification domain.ImportNotification) error {
	event := newEvent(notification, n.now())
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode import event: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Topic: n.topic,
		Key:   []byte(notification.CollegeID),
		Value: payload,
		Time:  event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("publish import event: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LoggingNotifier is used when no brokers are configured.
type LoggingNotifier struct {
	logger *zap.Logger
}

func NewLoggingNotifier(logger *zap.Logger) *LoggingNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Notify(_ context.Context, notification domain.ImportNotification) error {
	fields := []zap.Field{
		zap.String("job_id", notification.JobID),
		zap.String("college_id", notification.CollegeID),
		zap.String("admin_user_id", notification.AdminUserID),
		zap.String("status", string(notification.Status)),
		zap.Int64("total_rows", notification.TotalRows),
		zap.Int64("processed_rows", notification.ProcessedRows),
		zap.Int64("failed_rows", notification.FailedRows),
	}
	if notification.Fatal != "" {
		fields = append(fields, zap.String("fatal", notification.Fatal))
	}
	n.logger.Info("import finished", fields...)
	return nil
}

func (n *LoggingNotifier) Close() error {
	return nil
}
