package calcworker

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/petroeval_backend/config"
	"bitbucket.org/mmdatafocus/petroeval_backend/workflow"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

const subscriptionSuffix = "-worker"

// Run subscribes to the work queue topic and blocks consuming jobs until ctx
// is cancelled. The subscription ack deadline extension must outlive the
// per-attempt job timeout or in-flight jobs get redelivered mid-run.
func (w *Worker) Run(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topicName := workflow.QueueTopic()
	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}

	sub, err := config.CreateSubscriptionIfNotExists(client, topicName+subscriptionSuffix, topic, 600*time.Second)
	if err != nil {
		return err
	}

	sub.ReceiveSettings.MaxExtension = w.JobTimeout + time.Minute
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding()

	w.Logger.WithFields(logrus.Fields{
		"field":        "Worker",
		"worker_id":    w.WorkerId,
		"topic":        topicName,
		"subscription": topicName + subscriptionSuffix,
	}).Info("worker consuming calculation jobs")

	return sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var job workflow.CalculationJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			config.LogError(w.Logger, "calcworker", "Run", "dropping malformed job message",
				map[string]interface{}{"message_id": msg.ID}, err)
			msg.Ack()
			return
		}

		if err := w.Handle(msgCtx, job, msg.ID); err != nil {
			if err != errRetryNotDue {
				config.LogError(w.Logger, "calcworker", "Run", "job handling failed",
					map[string]interface{}{"calculation_id": job.CalculationId, "message_id": msg.ID}, err)
			}
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func maxOutstanding() int {
	if v := os.Getenv("WORKER_MAX_OUTSTANDING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 4
}
