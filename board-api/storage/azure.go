package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard/domain"
)

const boardPartition = "board"

// TableRepository keeps each board as one Azure Table entity holding the JSON
// document. The entity ETag is the version tag.
type TableRepository struct {
	table *aztables.Client
}

type boardEntity struct {
	aztables.Entity
	Title     string `json:"Title"`
	CreatedBy string `json:"CreatedBy"`
	Doc       string `json:"Doc"`
}

// NewTableRepository connects to the named table.
func NewTableRepository(connStr, table string) (*TableRepository, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableRepository{table: svc.NewClient(table)}, nil
}

func (r *TableRepository) List(ctx context.Context) ([]domain.Board, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := r.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	boards := []domain.Board{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			b, err := decodeBoardEntity(raw)
			if err != nil {
				return nil, err
			}
			boards = append(boards, b)
		}
	}
	return boards, nil
}

func (r *TableRepository) Get(ctx context.Context, id string) (*Record, error) {
	resp, err := r.table.GetEntity(ctx, boardPartition, id, nil)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	b, err := decodeBoardEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &Record{Board: b, ETag: string(resp.ETag)}, nil
}

func (r *TableRepository) Insert(ctx context.Context, b domain.Board) (string, error) {
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return "", err
	}
	resp, err := r.table.AddEntity(ctx, payload, nil)
	if err != nil {
		if statusCode(err) == http.StatusConflict {
			return "", fmt.Errorf("board %s: %w", b.ID, domain.ErrConcurrencyConflict)
		}
		return "", err
	}
	return string(resp.ETag), nil
}

func (r *TableRepository) Replace(ctx context.Context, b domain.Board, etag string) (string, error) {
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return "", err
	}
	et := azcore.ETag(etag)
	resp, err := r.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		switch statusCode(err) {
		case http.StatusPreconditionFailed:
			return "", fmt.Errorf("board %s: %w", b.ID, domain.ErrConcurrencyConflict)
		case http.StatusNotFound:
			return "", domain.BoardNotFound(b.ID)
		}
		return "", err
	}
	return string(resp.ETag), nil
}

func (r *TableRepository) Delete(ctx context.Context, id string) error {
	_, err := r.table.DeleteEntity(ctx, boardPartition, id, nil)
	if err != nil && statusCode(err) == http.StatusNotFound {
		return domain.BoardNotFound(id)
	}
	return err
}

func encodeBoardEntity(b domain.Board) ([]byte, error) {
	doc, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	ent := boardEntity{
		Entity: aztables.Entity{PartitionKey: boardPartition, RowKey: b.ID},
		Title:  b.Title,
		Doc:    string(doc),
	}
	if b.CreatedBy != nil {
		ent.CreatedBy = b.CreatedBy.ID
	}
	return json.Marshal(ent)
}

func decodeBoardEntity(raw []byte) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(raw, &ent); err != nil {
		return domain.Board{}, err
	}
	var b domain.Board
	if err := json.Unmarshal([]byte(ent.Doc), &b); err != nil {
		return domain.Board{}, fmt.Errorf("board %s: %w", ent.RowKey, err)
	}
	b.ID = ent.RowKey
	return b, nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}
