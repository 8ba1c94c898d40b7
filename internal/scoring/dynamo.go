package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type scoreItem struct {
	DoctorID   string `dynamodbav:"doctorId"`
	Trust      int    `dynamodbav:"trust"`
	Popularity int    `dynamodbav:"popularity"`
	Schedule   int    `dynamodbav:"schedule"`
	Total      int    `dynamodbav:"total"`
	Visits     int    `dynamodbav:"visits"`
	ComputedAt string `dynamodbav:"computedAt"`
}

// DynamoSink mirrors scores into a DynamoDB table keyed by doctorId for the
// ranking endpoints.
type DynamoSink struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoSink(client *dynamodb.Client, tableName string) *DynamoSink {
	return newDynamoSink(client, tableName)
}

func newDynamoSink(client dynamoAPI, tableName string) *DynamoSink {
	if client == nil {
		panic("scoring: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("scoring: table name cannot be empty")
	}
	return &DynamoSink{client: client, tableName: tableName}
}

func (s *DynamoSink) Name() string { return "dynamodb" }

// Put replaces the doctor's item.
func (s *DynamoSink) Put(ctx context.Context, sc Scores) error {
	item, err := attributevalue.MarshalMap(scoreItem{
		DoctorID:   sc.DoctorID.String(),
		Trust:      sc.Trust,
		Popularity: sc.Popularity,
		Schedule:   sc.Schedule,
		Total:      sc.Total,
		Visits:     sc.Visits,
		ComputedAt: sc.ComputedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("scoring: marshal scores: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("scoring: put scores item: %w", err)
	}
	return nil
}
