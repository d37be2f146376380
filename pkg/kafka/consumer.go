package kafka

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes messages from a single topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

type message struct {
	topic string
	data  []byte
	km    kafka.Message
	rd    *kafka.Reader
}

// Consumer reads topics through a consumer group and dispatches
// messages to registered handlers via a worker pool.
type Consumer struct {
	cfg      *ConsumerConfig
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	msgChan  chan *message
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	initConsumerMetricsOnce()

	return &Consumer{
		cfg:      cfg,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		stopChan: make(chan struct{}),
		msgChan:  make(chan *message, cfg.BufferSize),
	}, nil
}

// RegisterHandler registers a message handler for its topic.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		log.Printf("warn: handler already registered for topic %s", topic)
		return
	}
	c.handlers[topic] = handler
}

// Start launches one reader goroutine per registered topic plus the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}

	for topic := range c.handlers {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			GroupID:  c.cfg.GroupID,
			Topic:    topic,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = reader

		c.wg.Add(1)
		go c.consumeTopic(topic, reader)
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}

	return nil
}

// Stop shuts down readers and waits for workers to drain.
func (c *Consumer) Stop(ctx context.Context) error {
	var closeErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				closeErr = fmt.Errorf("close reader %s: %w", topic, err)
			}
		}
	})

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) consumeTopic(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		km, err := reader.FetchMessage(context.Background())
		if err != nil {
			select {
			case <-c.stopChan:
				return
			default:
			}
			consumerErrsTotal.WithLabelValues(topic, "fetch").Inc()
			time.Sleep(c.cfg.BackoffMin)
			continue
		}

		select {
		case c.msgChan <- &message{topic: topic, data: km.Value, km: km, rd: reader}:
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case m := <-c.msgChan:
			if m == nil {
				continue
			}
			c.handleWithRetry(m)
		}
	}
}

func (c *Consumer) handleWithRetry(m *message) {
	handler := c.handlers[m.topic]
	start := time.Now()

	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt))
		}
		if err = handler.Handle(context.Background(), m.data); err == nil {
			break
		}
	}

	result := "ok"
	if err != nil {
		// Retries exhausted: log and move on; the offset is still committed
		// so a poison message cannot wedge the partition.
		result = "error"
		consumerErrsTotal.WithLabelValues(m.topic, "handle").Inc()
		log.Printf("kafka handler error topic=%s offset=%d: %v", m.topic, m.km.Offset, err)
	}
	consumerMsgsTotal.WithLabelValues(m.topic, result).Inc()
	consumerLatencyHist.WithLabelValues(m.topic).Observe(time.Since(start).Seconds())

	if cerr := m.rd.CommitMessages(context.Background(), m.km); cerr != nil {
		consumerErrsTotal.WithLabelValues(m.topic, "commit").Inc()
		log.Printf("kafka commit error topic=%s offset=%d: %v", m.topic, m.km.Offset, cerr)
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	backoff := min << uint(attempt-1)
	if backoff > max {
		backoff = max
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	return backoff/2 + jitter
}

var (
	consumerOnce        sync.Once
	consumerMsgsTotal   *prometheus.CounterVec
	consumerErrsTotal   *prometheus.CounterVec
	consumerLatencyHist *prometheus.HistogramVec
)

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		consumerMsgsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthgate_kafka_consumer_messages_total",
				Help: "Total messages consumed from Kafka",
			},
			[]string{"topic", "result"},
		)
		consumerErrsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthgate_kafka_consumer_errors_total",
				Help: "Total consumer errors",
			},
			[]string{"topic", "stage"},
		)
		consumerLatencyHist = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "truthgate_kafka_consumer_handle_seconds",
				Help:    "Handler latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		)
	})
}
