package storage

import (
	"context"
	"encoding/json"
)

// DeletionRef identifies a task scheduled for removal by the expiry sweep.
type DeletionRef struct {
	OwnerID string `json:"ownerId"`
	TaskID  string `json:"taskId"`
}

// DeletionMessage is a dequeued deletion request together with the queue
// bookkeeping needed to acknowledge it.
type DeletionMessage struct {
	Ref        DeletionRef
	MessageID  string
	PopReceipt string
}

// EnqueueDeletions sends deletion requests to the deletion queue. Requests
// that fail to enqueue are reported and retried by the next sweep.
func (s *Storage) EnqueueDeletions(ctx context.Context, refs []DeletionRef) error {
	for _, ref := range refs {
		data, err := json.Marshal(ref)
		if err != nil {
			return err
		}
		if _, err := s.deleteQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// DequeueDeletion retrieves a single deletion request, returning nil when the
// queue is empty. Unacknowledged messages become visible again after the
// visibility timeout, which is the only retry mechanism the sweep relies on.
func (s *Storage) DequeueDeletion(ctx context.Context) (*DeletionMessage, error) {
	resp, err := s.deleteQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return nil, nil
	}
	var ref DeletionRef
	if err := json.Unmarshal([]byte(*msg.MessageText), &ref); err != nil {
		// A malformed message can never succeed; drop it.
		_, _ = s.deleteQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
		return nil, nil
	}
	return &DeletionMessage{Ref: ref, MessageID: *msg.MessageID, PopReceipt: *msg.PopReceipt}, nil
}

// AckDeletion removes a processed deletion request from the queue.
func (s *Storage) AckDeletion(ctx context.Context, messageID, popReceipt string) error {
	_, err := s.deleteQueue.DeleteMessage(ctx, messageID, popReceipt, nil)
	return err
}
