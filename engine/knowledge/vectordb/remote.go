package vectordb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vimarsh-ai/vimarsh/engine/store"
)

const remoteTimeout = 15 * time.Second

// remoteStore speaks to a vector index service over HTTP with the same
// contract as the in-process index. The service owns partition and
// dimension bookkeeping; this client surfaces its rejections unchanged.
type remoteStore struct {
	client   *resty.Client
	endpoint string
}

// NewRemoteStore builds the service-backed index client.
func NewRemoteStore(endpoint string) Store {
	return &remoteStore{
		client:   resty.New().SetTimeout(remoteTimeout),
		endpoint: endpoint,
	}
}

type remoteUpsertRequest struct {
	Records []snapshotRecord `json:"records"`
}

type remoteSearchRequest struct {
	Query     []float32         `json:"query"`
	TopK      int               `json:"top_k"`
	MinScore  float64           `json:"min_score"`
	Partition string            `json:"partition"`
	Filters   map[string]string `json:"filters,omitempty"`
}

type remoteSearchResponse struct {
	Matches []Match `json:"matches"`
}

type remoteDeleteRequest struct {
	Partition string   `json:"partition"`
	IDs       []string `json:"ids"`
}

func (s *remoteStore) Upsert(ctx context.Context, records []Record) error {
	body := remoteUpsertRequest{Records: make([]snapshotRecord, len(records))}
	for i, rec := range records {
		body.Records[i] = snapshotRecord(rec)
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(body).Post(s.endpoint + "/vectors/upsert")
	return s.checkResponse(resp, err, "upsert")
}

func (s *remoteStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	var result remoteSearchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(remoteSearchRequest{
			Query:     query,
			TopK:      opts.TopK,
			MinScore:  opts.MinScore,
			Partition: opts.Partition,
			Filters:   opts.Filters,
		}).
		SetResult(&result).
		Post(s.endpoint + "/vectors/search")
	if err := s.checkResponse(resp, err, "search"); err != nil {
		return nil, err
	}
	return result.Matches, nil
}

func (s *remoteStore) Delete(ctx context.Context, partition string, ids []string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(remoteDeleteRequest{Partition: partition, IDs: ids}).
		Post(s.endpoint + "/vectors/delete")
	return s.checkResponse(resp, err, "delete")
}

func (s *remoteStore) Close(context.Context) error {
	return nil
}

func (s *remoteStore) checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return store.ErrUnavailable(err, op)
	}
	if resp.IsError() {
		return store.ErrUnavailable(
			fmt.Errorf("vector service returned status %d", resp.StatusCode()), op)
	}
	return nil
}
