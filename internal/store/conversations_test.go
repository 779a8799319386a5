package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/kmswo146/pipl-cs/pkg/logging"
)

type fakeDynamo struct {
	getOut  *dynamodb.GetItemOutput
	getErr  error
	scanOut []*dynamodb.ScanOutput
	scanErr error
	updErr  error

	getInputs    []*dynamodb.GetItemInput
	updateInputs []*dynamodb.UpdateItemInput
	scanInputs   []*dynamodb.ScanInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getInputs = append(f.getInputs, in)
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOut != nil {
		return f.getOut, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInputs = append(f.updateInputs, in)
	if f.updErr != nil {
		return nil, f.updErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInputs = append(f.scanInputs, in)
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	if len(f.scanOut) == 0 {
		return &dynamodb.ScanOutput{}, nil
	}
	out := f.scanOut[0]
	f.scanOut = f.scanOut[1:]
	return out, nil
}

func newTestConversations(t *testing.T, client dynamoAPI) *Conversations {
	t.Helper()
	s := NewConversations(client, "support_conversations", logging.New("error"))
	s.now = func() time.Time { return time.Unix(1756500000, 0).UTC() }
	return s
}

func TestNewConversationsPanicsOnNilClient(t *testing.T) {
	require.Panics(t, func() { NewConversations(nil, "t", nil) })
}

func TestGetDecodesRecord(t *testing.T) {
	rec := ConversationRecord{
		ConversationID: "conv-1",
		UserID:         "user-9",
		UserEmail:      "a@b.com",
		PendingReply:   true,
		LastUserTS:     time.Unix(1756499000, 0).UTC(),
	}
	item, err := attributevalue.MarshalMap(rec)
	require.NoError(t, err)

	fake := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: item}}
	store := newTestConversations(t, fake)

	got, err := store.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Equal(t, "conv-1", got.ConversationID)
	require.Equal(t, "user-9", got.UserID)
	require.True(t, got.PendingReply)
	require.Equal(t, rec.LastUserTS, got.LastUserTS.UTC())

	require.Len(t, fake.getInputs, 1)
	key := fake.getInputs[0].Key["conversationId"].(*types.AttributeValueMemberS)
	require.Equal(t, "conv-1", key.Value)
}

func TestGetMissingItem(t *testing.T) {
	store := newTestConversations(t, &fakeDynamo{})
	_, err := store.Get(context.Background(), "conv-1")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestUpsertSetsPendingAndClearsPause(t *testing.T) {
	fake := &fakeDynamo{}
	store := newTestConversations(t, fake)

	err := store.Upsert(context.Background(), "conv-1", "user-9", "a@b.com")
	require.NoError(t, err)
	require.Len(t, fake.updateInputs, 1)

	in := fake.updateInputs[0]
	require.Equal(t, "support_conversations", *in.TableName)
	require.Contains(t, *in.UpdateExpression, "pendingReply = :pending")
	require.True(t, in.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberBOOL).Value)
	require.False(t, in.ExpressionAttributeValues[":paused"].(*types.AttributeValueMemberBOOL).Value)
	require.False(t, in.ExpressionAttributeValues[":awaiting"].(*types.AttributeValueMemberBOOL).Value)
	require.Equal(t, "1756500000", in.ExpressionAttributeValues[":userTs"].(*types.AttributeValueMemberN).Value)
}

func TestPauseBotFlags(t *testing.T) {
	fake := &fakeDynamo{}
	store := newTestConversations(t, fake)

	require.NoError(t, store.PauseBot(context.Background(), "conv-1"))
	require.Len(t, fake.updateInputs, 1)

	in := fake.updateInputs[0]
	require.Contains(t, *in.UpdateExpression, "botPaused = :botPaused")
	require.True(t, in.ExpressionAttributeValues[":botPaused"].(*types.AttributeValueMemberBOOL).Value)
	require.False(t, in.ExpressionAttributeValues[":pendingReply"].(*types.AttributeValueMemberBOOL).Value)
	require.NotContains(t, *in.UpdateExpression, "awaitingClarification")
}

func TestResetFlagsClearsEverything(t *testing.T) {
	fake := &fakeDynamo{}
	store := newTestConversations(t, fake)

	require.NoError(t, store.ResetFlags(context.Background(), "conv-1"))
	in := fake.updateInputs[0]
	for _, placeholder := range []string{":pendingReply", ":botPaused", ":awaitingClarification"} {
		require.False(t, in.ExpressionAttributeValues[placeholder].(*types.AttributeValueMemberBOOL).Value)
	}
}

func TestMarkRepliedStampsBotTimestamp(t *testing.T) {
	fake := &fakeDynamo{}
	store := newTestConversations(t, fake)

	require.NoError(t, store.MarkReplied(context.Background(), "conv-1"))
	in := fake.updateInputs[0]
	require.Equal(t, "1756500000", in.ExpressionAttributeValues[":botTs"].(*types.AttributeValueMemberN).Value)
	require.False(t, in.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberBOOL).Value)
	require.Equal(t, "attribute_exists(conversationId)", *in.ConditionExpression)
}

func TestListPendingFilterAndPagination(t *testing.T) {
	first := ConversationRecord{ConversationID: "conv-1", PendingReply: true}
	second := ConversationRecord{ConversationID: "conv-2", PendingReply: true}
	firstItem, err := attributevalue.MarshalMap(first)
	require.NoError(t, err)
	secondItem, err := attributevalue.MarshalMap(second)
	require.NoError(t, err)

	fake := &fakeDynamo{scanOut: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{firstItem},
			LastEvaluatedKey: conversationKey("conv-1"),
		},
		{Items: []map[string]types.AttributeValue{secondItem}},
	}}
	store := newTestConversations(t, fake)

	cutoff := time.Unix(1756499970, 0).UTC()
	records, err := store.ListPending(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "conv-1", records[0].ConversationID)
	require.Equal(t, "conv-2", records[1].ConversationID)

	require.Len(t, fake.scanInputs, 2)
	in := fake.scanInputs[0]
	require.True(t, strings.Contains(*in.FilterExpression, "lastUserTs <= :cutoff"))
	require.Equal(t, "1756499970", in.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberN).Value)
	require.True(t, in.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberBOOL).Value)
	require.False(t, in.ExpressionAttributeValues[":paused"].(*types.AttributeValueMemberBOOL).Value)
	require.NotNil(t, fake.scanInputs[1].ExclusiveStartKey)
}

func TestListPendingScanError(t *testing.T) {
	fake := &fakeDynamo{scanErr: errors.New("throttled")}
	store := newTestConversations(t, fake)

	_, err := store.ListPending(context.Background(), time.Now())
	require.ErrorContains(t, err, "failed to list pending conversations")
}
