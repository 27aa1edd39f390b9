package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	keyUserID  = "userId"
	attrIsPaid = "isPaid"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Client reads subscription entitlement records. The table is owned by the
// billing side; this package never writes to it.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// IsPaid reports whether the entitlement item for userID exists and its
// isPaid attribute is the boolean true. A missing item or any other isPaid
// shape is not paid. Only read failures return an error.
func (c *Client) IsPaid(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, errors.New("repository: IsPaid: user id is required")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			keyUserID: &types.AttributeValueMemberS{Value: userID},
		},
		ProjectionExpression: aws.String(attrIsPaid),
		ConsistentRead:       aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("repository: IsPaid get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return false, nil
	}
	return boolAttr(out.Item, attrIsPaid), nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	v, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && v.Value
}
