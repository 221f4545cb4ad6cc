// Package es creates the Elasticsearch client and the chunk vector index.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/noelpapali/Conversational-AI-Chatbot/internal/config"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
)

// NewClient builds a client for the comma-separated addresses of cfg.
func NewClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addresses []string
	for _, a := range strings.Split(cfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addresses = append(addresses, a)
		}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// IndexMapping returns the mapping of the chunk index: one keyword field
// per metadata field, the chunk text and a cosine dense_vector.
func IndexMapping(dims int) map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"vector_id":    keyword,
				"text":         map[string]interface{}{"type": "text"},
				"source":       keyword,
				"chunk_index":  map[string]interface{}{"type": "integer"},
				"subheading":   keyword,
				"keywords":     keyword,
				"filename":     keyword,
				"type":         keyword,
				"name":         keyword,
				"url":          keyword,
				"program_name": keyword,
				"degreelevel":  keyword,
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				"model_version": keyword,
			},
		},
	}
}

// EnsureIndex creates indexName with IndexMapping(dims) unless it exists.
func EnsureIndex(ctx context.Context, client *elasticsearch.Client, indexName string, dims int) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{indexName}}.Do(ctx, client)
	if err != nil {
		log.Errorf("[ES] checking index %s failed: %v", indexName, err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("[ES] index '%s' already exists", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("checking index %s: unexpected status %d", indexName, res.StatusCode)
	}

	body, err := json.Marshal(IndexMapping(dims))
	if err != nil {
		return err
	}
	res, err = esapi.IndicesCreateRequest{Index: indexName, Body: bytes.NewReader(body)}.Do(ctx, client)
	if err != nil {
		log.Errorf("[ES] creating index %s failed: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] creating index %s returned an error: %s", indexName, res.String())
		return fmt.Errorf("create index %s: %s", indexName, res.Status())
	}
	log.Infof("[ES] index '%s' created with %d dimensions", indexName, dims)
	return nil
}
