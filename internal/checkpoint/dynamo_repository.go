package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/MonteBryce/fieldsync/internal/models"
)

// keyPrefix namespaces checkpoint items in a shared table.
const keyPrefix = "checkpoint#"

// DynamoRepository stores checkpoints in DynamoDB for hosted deployments.
// The whole checkpoint travels as a JSON blob; a TTL attribute set from the
// retention window lets the table expire abandoned items on its own.
type DynamoRepository struct {
	client    *dynamodb.Client
	tableName string
	retention time.Duration
}

// NewDynamoRepository creates a DynamoDB checkpoint repository.
func NewDynamoRepository(ctx context.Context, tableName, region string, retention time.Duration) (*DynamoRepository, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	if retention <= 0 {
		retention = models.DefaultCheckpointRetention
	}

	return &DynamoRepository{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
		retention: retention,
	}, nil
}

// NewDynamoRepositoryWithClient wires an existing client, mainly for tests.
func NewDynamoRepositoryWithClient(client *dynamodb.Client, tableName string, retention time.Duration) *DynamoRepository {
	if retention <= 0 {
		retention = models.DefaultCheckpointRetention
	}
	return &DynamoRepository{client: client, tableName: tableName, retention: retention}
}

// Save persists the checkpoint.
func (r *DynamoRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{
				Value: keyPrefix + cp.ID,
			},
			"data": &types.AttributeValueMemberS{
				Value: string(data),
			},
			"ttl": &types.AttributeValueMemberN{
				Value: fmt.Sprintf("%d", time.Now().Add(r.retention).Unix()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", cp.ID, err)
	}

	return nil
}

// Load returns a checkpoint by ID.
func (r *DynamoRepository) Load(ctx context.Context, id string) (*models.Checkpoint, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{
				Value: keyPrefix + id,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", id, err)
	}

	if result.Item == nil {
		return nil, models.ErrCheckpointNotFound
	}

	return unmarshalItem(result.Item)
}

// List scans the checkpoint key space, newest first.
func (r *DynamoRepository) List(ctx context.Context) ([]*models.Checkpoint, error) {
	var out []*models.Checkpoint

	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("begins_with(pk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: keyPrefix},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoints: %w", err)
		}
		for _, item := range page.Items {
			cp, err := unmarshalItem(item)
			if err != nil {
				return nil, err
			}
			out = append(out, cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})

	return out, nil
}

// Delete removes a checkpoint; absence is a no-op.
func (r *DynamoRepository) Delete(ctx context.Context, id string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{
				Value: keyPrefix + id,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; the underlying client has no resources to release.
func (r *DynamoRepository) Close() error {
	return nil
}

func unmarshalItem(item map[string]types.AttributeValue) (*models.Checkpoint, error) {
	dataAttr, ok := item["data"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("checkpoint item missing data attribute")
	}

	var cp models.Checkpoint
	if err := json.Unmarshal([]byte(dataAttr.Value), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}
