package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/pkg/models"
)

// Catalog is a read-through client for the external item-metadata service.
// Lookups are cached in Redis; a missing item is (nil, nil), never an error,
// so callers can skip a candidate without aborting the pipeline.
type Catalog struct {
	config *config.CatalogConfig
	client *http.Client
	redis  *redis.Client
	logger *logrus.Logger
}

func NewCatalog(cfg *config.CatalogConfig, redisClient *redis.Client, logger *logrus.Logger) *Catalog {
	return &Catalog{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		redis:  redisClient,
		logger: logger,
	}
}

// catalogItem is the metadata service's wire format.
type catalogItem struct {
	Title    string `json:"title"`
	Overview string `json:"overview"`
	Genres   []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// Item fetches metadata for one item id.
func (c *Catalog) Item(ctx context.Context, itemID string) (*models.Item, error) {
	if cached := c.cachedItem(ctx, itemID); cached != nil {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/movie/%s?api_key=%s",
		strings.TrimSuffix(c.config.BaseURL, "/"),
		url.PathEscape(itemID),
		url.QueryEscape(c.config.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d for item %s", resp.StatusCode, itemID)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	var raw catalogItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed catalog response for item %s: %w", itemID, err)
	}

	item := &models.Item{
		ID:       itemID,
		Title:    raw.Title,
		Overview: raw.Overview,
	}
	for _, g := range raw.Genres {
		item.Genres = append(item.Genres, g.Name)
	}

	c.cacheItem(ctx, item)
	return item, nil
}

func (c *Catalog) cachedItem(ctx context.Context, itemID string) *models.Item {
	if c.redis == nil {
		return nil
	}
	cached, err := c.redis.Get(ctx, catalogCacheKey(itemID)).Result()
	if err != nil {
		return nil
	}
	var item models.Item
	if err := json.Unmarshal([]byte(cached), &item); err != nil {
		c.logger.WithError(err).WithField("item_id", itemID).
			Warn("Failed to deserialize cached catalog item")
		return nil
	}
	return &item
}

func (c *Catalog) cacheItem(ctx context.Context, item *models.Item) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, catalogCacheKey(item.ID), data, c.config.CacheTTL).Err(); err != nil {
		c.logger.WithError(err).WithField("item_id", item.ID).
			Warn("Failed to cache catalog item")
	}
}

func catalogCacheKey(itemID string) string {
	return "catalog:item:" + itemID
}
