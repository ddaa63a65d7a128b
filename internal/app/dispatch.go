package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"tracker/api/internal/hub"
)

const (
	IntentCreateIssue   = "CREATE_ISSUE"
	IntentUpdateStatus  = "UPDATE_STATUS"
	IntentAddComment    = "ADD_COMMENT"
	IntentFetchComments = "FETCH_COMMENTS"
)

type intent struct {
	Type    string            `json:"type"`
	Data    *CreateIssueInput `json:"data"`
	IssueID int               `json:"issueId"`
	Status  string            `json:"status"`
	User    string            `json:"user"`
	Comment *CommentInput     `json:"comment"`
}

// Dispatcher turns inbound websocket frames into coordinator calls.
type Dispatcher struct {
	coordinator *Coordinator
	hub         Broadcaster
}

func NewDispatcher(coordinator *Coordinator, broadcaster Broadcaster) *Dispatcher {
	return &Dispatcher{coordinator: coordinator, hub: broadcaster}
}

func (d *Dispatcher) HandleMessage(ctx context.Context, sub hub.Subscriber, payload []byte) {
	err := d.dispatch(ctx, sub, payload)
	if err == nil {
		return
	}
	if errors.Is(err, ErrMalformedIntent) {
		log.Printf("dispatch: rejected intent from %s: %v", sub.ID(), err)
		d.hub.SendTo(sub, hub.Error("MALFORMED_INTENT", errorMessage(err)))
		return
	}
	log.Printf("dispatch: intent from %s failed: %v", sub.ID(), err)
}

func (d *Dispatcher) dispatch(ctx context.Context, sub hub.Subscriber, payload []byte) error {
	var msg intent
	if err := json.Unmarshal(payload, &msg); err != nil {
		return malformed("invalid JSON message")
	}

	switch msg.Type {
	case IntentCreateIssue:
		if msg.Data == nil {
			return malformed("data is required")
		}
		_, err := d.coordinator.CreateIssue(ctx, *msg.Data)
		return err
	case IntentUpdateStatus:
		return d.coordinator.UpdateStatus(ctx, UpdateStatusInput{
			IssueID: msg.IssueID,
			Status:  msg.Status,
			User:    msg.User,
		})
	case IntentAddComment:
		if msg.Comment == nil {
			return malformed("comment is required")
		}
		return d.coordinator.AddComment(ctx, msg.IssueID, *msg.Comment)
	case IntentFetchComments:
		comments, err := d.coordinator.FetchComments(ctx, msg.IssueID)
		if err != nil {
			return err
		}
		d.hub.SendTo(sub, hub.CommentsFetched(msg.IssueID, comments))
		return nil
	case "":
		return malformed("type is required")
	default:
		return malformed(fmt.Sprintf("unknown intent type %q", msg.Type))
	}
}

func errorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}
