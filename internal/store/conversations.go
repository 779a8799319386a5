package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

// ErrConversationNotFound indicates the requested conversation does not exist.
var ErrConversationNotFound = errors.New("store: conversation not found")

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// ConversationRecord is the persisted per-conversation bot state.
//
// PendingReply marks a customer message awaiting a bot decision. BotPaused is
// set once a human agent replies and suppresses all auto-reply until the
// conversation is closed. Timestamps are stored as epoch seconds so the
// eligibility filter can compare them numerically.
type ConversationRecord struct {
	ConversationID        string    `dynamodbav:"conversationId" json:"conversationId"`
	UserID                string    `dynamodbav:"userId" json:"userId"`
	UserEmail             string    `dynamodbav:"userEmail" json:"userEmail"`
	PendingReply          bool      `dynamodbav:"pendingReply" json:"pendingReply"`
	BotPaused             bool      `dynamodbav:"botPaused" json:"botPaused"`
	AwaitingClarification bool      `dynamodbav:"awaitingClarification" json:"awaitingClarification"`
	LastUserTS            time.Time `dynamodbav:"lastUserTs,unixtime" json:"lastUserTs"`
	LastBotTS             time.Time `dynamodbav:"lastBotTs,unixtime" json:"lastBotTs"`
	UpdatedAt             string    `dynamodbav:"updatedAt" json:"updatedAt"`
}

// Conversations persists conversation records to DynamoDB.
type Conversations struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	now       func() time.Time
}

// NewConversations builds a store backed by the provided DynamoDB client.
func NewConversations(client dynamoAPI, tableName string, logger *logging.Logger) *Conversations {
	if client == nil {
		panic("store: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("store: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Conversations{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// Get fetches one conversation record.
func (s *Conversations) Get(ctx context.Context, conversationID string) (*ConversationRecord, error) {
	if conversationID == "" {
		return nil, errors.New("store: conversation id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       conversationKey(conversationID),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to fetch conversation: %w", err)
	}
	if out.Item == nil {
		return nil, ErrConversationNotFound
	}

	var rec ConversationRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("store: failed to decode conversation: %w", err)
	}
	return &rec, nil
}

// Upsert records an inbound customer message: pending reply set, pause
// cleared, clarification reset, last_user_ts stamped now.
func (s *Conversations) Upsert(ctx context.Context, conversationID, userID, userEmail string) error {
	if conversationID == "" {
		return errors.New("store: conversation id required")
	}
	now := s.now().UTC()

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       conversationKey(conversationID),
		UpdateExpression: aws.String(
			"SET userId = :user, userEmail = :email, pendingReply = :pending, botPaused = :paused, awaitingClarification = :awaiting, lastUserTs = :userTs, updatedAt = :updated",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user":     &types.AttributeValueMemberS{Value: userID},
			":email":    &types.AttributeValueMemberS{Value: userEmail},
			":pending":  &types.AttributeValueMemberBOOL{Value: true},
			":paused":   &types.AttributeValueMemberBOOL{Value: false},
			":awaiting": &types.AttributeValueMemberBOOL{Value: false},
			":userTs":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			":updated":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("store: failed to upsert conversation %s: %w", conversationID, err)
	}
	return nil
}

// PauseBot suppresses auto-replies after a human agent takes over.
func (s *Conversations) PauseBot(ctx context.Context, conversationID string) error {
	return s.setFlags(ctx, conversationID, map[string]bool{
		"pendingReply": false,
		"botPaused":    true,
	})
}

// ResetFlags clears all flags when the conversation is closed.
func (s *Conversations) ResetFlags(ctx context.Context, conversationID string) error {
	return s.setFlags(ctx, conversationID, map[string]bool{
		"pendingReply":          false,
		"botPaused":             false,
		"awaitingClarification": false,
	})
}

// MarkReplied clears the pending flag and stamps last_bot_ts after a
// successful (or deliberately silent) bot turn.
func (s *Conversations) MarkReplied(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("store: conversation id required")
	}
	now := s.now().UTC()

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key:       conversationKey(conversationID),
		UpdateExpression: aws.String(
			"SET pendingReply = :pending, awaitingClarification = :awaiting, lastBotTs = :botTs, updatedAt = :updated",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending":  &types.AttributeValueMemberBOOL{Value: false},
			":awaiting": &types.AttributeValueMemberBOOL{Value: false},
			":botTs":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			":updated":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(conversationId)"),
	})
	if err != nil {
		return fmt.Errorf("store: failed to mark conversation %s replied: %w", conversationID, err)
	}
	return nil
}

// ListPending returns conversations eligible for a bot decision: pending,
// not paused, and whose last customer message is at or before the cutoff.
func (s *Conversations) ListPending(ctx context.Context, cutoff time.Time) ([]ConversationRecord, error) {
	var (
		records []ConversationRecord
		start   map[string]types.AttributeValue
	)

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("pendingReply = :pending AND botPaused = :paused AND lastUserTs <= :cutoff"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pending": &types.AttributeValueMemberBOOL{Value: true},
				":paused":  &types.AttributeValueMemberBOOL{Value: false},
				":cutoff":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cutoff.Unix())},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("store: failed to list pending conversations: %w", err)
		}

		var page []ConversationRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("store: failed to decode pending conversations: %w", err)
		}
		records = append(records, page...)

		if out.LastEvaluatedKey == nil {
			break
		}
		start = out.LastEvaluatedKey
	}

	return records, nil
}

func (s *Conversations) setFlags(ctx context.Context, conversationID string, flags map[string]bool) error {
	if conversationID == "" {
		return errors.New("store: conversation id required")
	}

	expr := "SET updatedAt = :updated"
	values := map[string]types.AttributeValue{
		":updated": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
	}
	// Deterministic expression order keeps requests reproducible in tests.
	for _, name := range []string{"pendingReply", "botPaused", "awaitingClarification"} {
		value, ok := flags[name]
		if !ok {
			continue
		}
		placeholder := ":" + name
		expr += ", " + name + " = " + placeholder
		values[placeholder] = &types.AttributeValueMemberBOOL{Value: value}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       conversationKey(conversationID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(conversationId)"),
	})
	if err != nil {
		return fmt.Errorf("store: failed to update conversation %s flags: %w", conversationID, err)
	}
	return nil
}

func conversationKey(conversationID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
	}
}
