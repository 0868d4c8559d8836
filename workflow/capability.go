package workflow

import (
	"context"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/engine"
	"bitbucket.org/mmdatafocus/petroeval_backend/models"
	"bitbucket.org/mmdatafocus/petroeval_backend/utils"
)

// Capability interfaces injected into strategies and the worker. There is no
// ambient global state outside the config singletons these implementations
// delegate to.

// CacheStore is the content-addressed result cache plus the ephemeral
// progress side-channel. Results are keyed by fingerprint, so unlocked
// last-writer-wins semantics are harmless.
type CacheStore interface {
	GetResult(ctx context.Context, fingerprint string) (*engine.CalculationResult, error)
	SetResult(ctx context.Context, fingerprint string, result *engine.CalculationResult, ttl time.Duration) error

	SetProgress(ctx context.Context, calculationId uint, p models.ProgressNotification, ttl time.Duration) error
	GetProgress(ctx context.Context, calculationId uint) (*models.ProgressNotification, error)
	ClearProgress(ctx context.Context, calculationId uint) error
}

// CalculationJob is one queued unit of stochastic work.
type CalculationJob struct {
	CalculationId uint   `json:"calculation_id"`
	CaseId        string `json:"case_id"`
}

// WorkQueue hands a job to the asynchronous worker pool. The queue must
// provide at-least-once delivery with a visibility timeout at least as long
// as the per-attempt job timeout.
type WorkQueue interface {
	Enqueue(ctx context.Context, job CalculationJob) error
}

// Notifier publishes a message on a topic. The three payload shapes in
// models/notification.go are the entire contract.
type Notifier interface {
	Publish(ctx context.Context, topic string, message interface{}) error
}

// CaseTopic is the notification topic for one evaluation case.
func CaseTopic(caseId string) string {
	prefix := strings.TrimSpace(os.Getenv("CASE_TOPIC_PREFIX"))
	if prefix == "" {
		prefix = "calc-case"
	}
	return prefix + "-" + caseId
}

// QueueTopic is the stochastic work queue topic.
func QueueTopic() string {
	topic := strings.TrimSpace(os.Getenv("CALC_QUEUE_TOPIC"))
	if topic == "" {
		topic = "calc-runs"
	}
	return topic
}

/* redis-backed cache store */

type redisCacheStore struct{}

func NewRedisCacheStore() CacheStore {
	return redisCacheStore{}
}

func (redisCacheStore) GetResult(ctx context.Context, fingerprint string) (*engine.CalculationResult, error) {
	return utils.RetrieveCached[engine.CalculationResult](utils.ResultCacheKey(fingerprint))
}

func (redisCacheStore) SetResult(ctx context.Context, fingerprint string, result *engine.CalculationResult, ttl time.Duration) error {
	return utils.StoreCached(utils.ResultCacheKey(fingerprint), result, ttl)
}

func (redisCacheStore) SetProgress(ctx context.Context, calculationId uint, p models.ProgressNotification, ttl time.Duration) error {
	return utils.StoreCached(utils.ProgressChannelKey(calculationId), &p, ttl)
}

func (redisCacheStore) GetProgress(ctx context.Context, calculationId uint) (*models.ProgressNotification, error) {
	return utils.RetrieveCached[models.ProgressNotification](utils.ProgressChannelKey(calculationId))
}

func (redisCacheStore) ClearProgress(ctx context.Context, calculationId uint) error {
	return utils.RemoveCached(utils.ProgressChannelKey(calculationId))
}

/* pub/sub-backed queue and notifier */

type pubSubWorkQueue struct{}

func NewPubSubWorkQueue() WorkQueue {
	return pubSubWorkQueue{}
}

func (pubSubWorkQueue) Enqueue(ctx context.Context, job CalculationJob) error {
	_, err := config.PublishJSON(ctx, QueueTopic(), job)
	return err
}

type pubSubNotifier struct{}

func NewPubSubNotifier() Notifier {
	return pubSubNotifier{}
}

func (pubSubNotifier) Publish(ctx context.Context, topic string, message interface{}) error {
	_, err := config.PublishJSON(ctx, topic, message)
	return err
}
