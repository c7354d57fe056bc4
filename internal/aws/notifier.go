package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// PublishedMessage is the body sent for every committed publication batch.
type PublishedMessage struct {
	Event       string    `json:"event"`
	DocumentIDs []string  `json:"documentIds"`
	ImageURLs   []string  `json:"imageUrls"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Notifier announces newly published wallpapers on an SQS queue.
type Notifier struct {
	SQS      SQSAPI
	QueueURL string
	now      func() time.Time
}

// NewNotifier returns a Notifier bound to a queue URL.
func NewNotifier(client SQSAPI, queueURL string) *Notifier {
	return &Notifier{SQS: client, QueueURL: queueURL, now: time.Now}
}

// Published sends one message describing a committed batch.
func (n *Notifier) Published(ctx context.Context, documentIDs, imageURLs []string) error {
	body, err := json.Marshal(PublishedMessage{
		Event:       "wallpapers.published",
		DocumentIDs: documentIDs,
		ImageURLs:   imageURLs,
		PublishedAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = n.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    sdkaws.String(n.QueueURL),
		MessageBody: sdkaws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"count": {DataType: sdkaws.String("Number"), StringValue: sdkaws.String(strconv.Itoa(len(documentIDs)))},
		},
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
