package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/account-lifecycle/internal/application"
	"github.com/oksasatya/account-lifecycle/internal/domain/entity"
)

// AccountIndex keeps the user search index in step with lifecycle writes.
type AccountIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewAccountIndex(es *elasticsearch.Client, index string) *AccountIndex {
	return &AccountIndex{es: es, index: index}
}

type accountDoc struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
	Status     string `json:"status"`
	Anonymized bool   `json:"anonymized"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toDoc(a entity.Account) accountDoc {
	return accountDoc{
		ID:         a.ID,
		Email:      a.Email,
		Name:       a.Nickname,
		AvatarURL:  a.ProfileImage,
		Status:     string(a.Status),
		Anonymized: a.Anonymized,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  a.UpdatedAt.Format(time.RFC3339Nano),
	}
}

const accountMapping = `{
  "mappings": {
    "properties": {
      "id":         {"type": "keyword"},
      "email":      {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "name":       {"type": "text"},
      "avatar_url": {"type": "keyword", "index": false},
      "status":     {"type": "keyword"},
      "anonymized": {"type": "boolean"},
      "created_at": {"type": "date"},
      "updated_at": {"type": "date"}
    }
  }
}`

// EnsureIndex creates the index with the account mapping when it does not
// exist yet. A concurrent create by another process is not an error.
func (x *AccountIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.es.Indices.Exists([]string{x.index}, x.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return err
	}
	_ = res.Body.Close()
	switch {
	case res.StatusCode == http.StatusOK:
		return nil
	case res.StatusCode != http.StatusNotFound:
		return responseError("exists", res)
	}

	res, err = x.es.Indices.Create(x.index,
		x.es.Indices.Create.WithContext(ctx),
		x.es.Indices.Create.WithBody(strings.NewReader(accountMapping)),
	)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusBadRequest {
		return responseError("create", res)
	}
	return nil
}

func responseError(op string, res *esapi.Response) error {
	return fmt.Errorf("elasticsearch %s: %s", op, res.Status())
}

func (x *AccountIndex) IndexAccount(ctx context.Context, a entity.Account) error {
	b, err := json.Marshal(toDoc(a))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: x.index, DocumentID: a.ID, Body: bytes.NewReader(b), Refresh: "false"}
	res, err := req.Do(ctx, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("index", res)
	}
	return nil
}

// RemoveAccount deletes the document; a missing document is not an error.
func (x *AccountIndex) RemoveAccount(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: x.index, DocumentID: id}
	res, err := req.Do(ctx, x.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res)
	}
	return nil
}

// Hit is one search result.
type Hit struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Anonymized bool   `json:"anonymized"`
}

// Search runs a multi_match over email and name, optionally narrowed to one status.
func (x *AccountIndex) Search(ctx context.Context, q, status string, size int) ([]Hit, error) {
	if size <= 0 || size > 50 {
		size = 10
	}
	boolQuery := map[string]any{}
	if q != "" {
		boolQuery["must"] = []any{map[string]any{
			"multi_match": map[string]any{"query": q, "fields": []string{"email^2", "name"}},
		}}
	}
	if status != "" {
		boolQuery["filter"] = []any{map[string]any{"term": map[string]any{"status": status}}}
	}
	query := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := x.es.Search(
		x.es.Search.WithContext(ctx),
		x.es.Search.WithIndex(x.index),
		x.es.Search.WithBody(bytes.NewReader(b)),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("search", res)
	}
	var parsed struct {
		Hits struct {
			Hits []struct {
				Source Hit `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

var _ application.SearchIndex = (*AccountIndex)(nil)
