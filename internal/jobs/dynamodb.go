package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBStore keeps job state in a DynamoDB table keyed by "id", so the
// web process and remote workers share it.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
}

var _ Store = (*DynamoDBStore)(nil)

func NewDynamoDBStore(client DynamoDBAPI, tableName string) (*DynamoDBStore, error) {
	if tableName == "" {
		return nil, fmt.Errorf("DynamoDB table name cannot be empty")
	}
	return &DynamoDBStore{client: client, tableName: tableName}, nil
}

func (s *DynamoDBStore) Create(ctx context.Context, job *Job) error {
	return s.put(ctx, job, "attribute_not_exists(id)", fmt.Errorf("job %s already exists", job.Id))
}

func (s *DynamoDBStore) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	return s.put(ctx, job, "attribute_exists(id)", ErrJobNotFound)
}

func (s *DynamoDBStore) put(ctx context.Context, job *Job, condition string, conflict error) error {
	av, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return conflict
		}
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) Get(ctx context.Context, id string) (*Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return nil, ErrJobNotFound
	}

	var job Job
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &job, nil
}
