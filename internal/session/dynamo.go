package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/fanvue/fanvue-app-starter/internal/crypto"
	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps token sets server-side, keyed by a random session id.
// The client only holds a signed reference to the id, so sessions are
// revocable and not bound by cookie size. Records expire through the table's
// TTL attribute (expires_at); reads also check it since TTL deletion lags.
//
// A nil client falls back to an in-memory map, for DEV_MODE and tests.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	codec     *Codec
	encryptor crypto.Encryptor
	logger    *slog.Logger
	now       func() time.Time

	// In-memory fallback
	records map[string]model.StoredSession
	mu      sync.RWMutex
}

// NewDynamoStore creates a DynamoStore.
func NewDynamoStore(client DynamoAPI, tableName string, codec *Codec, encryptor crypto.Encryptor, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		codec:     codec,
		encryptor: encryptor,
		logger:    logger,
		now:       time.Now,
		records:   make(map[string]model.StoredSession),
	}
}

// Save seals ts and writes it under the session id referenced by previous,
// or under a fresh id when previous is empty or no longer valid.
func (s *DynamoStore) Save(ctx context.Context, previous string, ts model.TokenSet) (string, error) {
	id, ok := s.codec.DecodeReference(previous)
	if !ok {
		id = uuid.New().String()
	}

	payload, err := json.Marshal(ts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token set: %w", err)
	}
	sealed, err := s.encryptor.Seal(ctx, id, payload)
	if err != nil {
		return "", fmt.Errorf("failed to seal token set: %w", err)
	}

	now := s.now()
	record := model.StoredSession{
		SessionID:     id,
		SealedTokens:  sealed,
		TokenExpiry:   ts.ExpiresAt,
		UpdatedAt:     now,
		ExpiresAtUnix: now.Add(s.codec.MaxAge()).Unix(),
	}

	if s.client == nil {
		s.mu.Lock()
		s.records[id] = record
		s.mu.Unlock()
	} else {
		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return "", fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      item,
		})
		if err != nil {
			return "", fmt.Errorf("failed to save session to DynamoDB: %w", err)
		}
	}

	return s.codec.EncodeReference(id)
}

// Load resolves the reference, fetches and opens the record.
func (s *DynamoStore) Load(ctx context.Context, value string) (*model.TokenSet, error) {
	id, ok := s.codec.DecodeReference(value)
	if !ok {
		return nil, ErrNoSession
	}

	record, found, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || record.ExpiresAtUnix < s.now().Unix() {
		return nil, ErrNoSession
	}

	payload, err := s.encryptor.Open(ctx, id, record.SealedTokens)
	if err != nil {
		s.logger.Warn("session record failed to open", slog.String("error", err.Error()))
		return nil, ErrNoSession
	}
	var ts model.TokenSet
	if err := json.Unmarshal(payload, &ts); err != nil || ts.AccessToken == "" {
		return nil, ErrNoSession
	}
	return &ts, nil
}

// Delete removes the record. Invalid references and missing records are ignored.
func (s *DynamoStore) Delete(ctx context.Context, value string) error {
	id, ok := s.codec.DecodeReference(value)
	if !ok {
		return nil
	}

	if s.client == nil {
		s.mu.Lock()
		delete(s.records, id)
		s.mu.Unlock()
		return nil
	}

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *DynamoStore) get(ctx context.Context, id string) (model.StoredSession, bool, error) {
	if s.client == nil {
		s.mu.RLock()
		record, ok := s.records[id]
		s.mu.RUnlock()
		return record, ok, nil
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.StoredSession{}, false, fmt.Errorf("failed to get session from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return model.StoredSession{}, false, nil
	}

	var record model.StoredSession
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return model.StoredSession{}, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return record, true, nil
}
