package product

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/go-resty/resty/v2"
)

// MagentoSource queries the Magento 2 REST catalogue.
type MagentoSource struct {
	client  *resty.Client
	baseURL string
}

// NewMagentoSource creates a client for the store at cfg.BaseURL using an integration token.
func NewMagentoSource(cfg *config.MagentoConfig) *MagentoSource {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &MagentoSource{
		client:  client,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type magentoSearchResponse struct {
	Items []struct {
		SKU              string  `json:"sku"`
		Name             string  `json:"name"`
		Price            float64 `json:"price"`
		CustomAttributes []struct {
			AttributeCode string      `json:"attribute_code"`
			Value         interface{} `json:"value"`
		} `json:"custom_attributes"`
	} `json:"items"`
	TotalCount int `json:"total_count"`
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Search returns up to limit enabled products whose name contains the query.
func (m *MagentoSource) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []Product{}, nil
	}

	var resp magentoSearchResponse
	httpResp, err := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"searchCriteria[filterGroups][0][filters][0][field]":         "name",
			"searchCriteria[filterGroups][0][filters][0][value]":         "%" + query + "%",
			"searchCriteria[filterGroups][0][filters][0][conditionType]": "like",
			"searchCriteria[filterGroups][1][filters][0][field]":         "status",
			"searchCriteria[filterGroups][1][filters][0][value]":         "1",
			"searchCriteria[pageSize]":                                    strconv.Itoa(limit),
			"searchCriteria[currentPage]":                                 "1",
		}).
		SetResult(&resp).
		Get("/rest/V1/products")
	if err != nil {
		return nil, fmt.Errorf("failed to call Magento API: %w", err)
	}
	if httpResp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("Magento API error: status %d", httpResp.StatusCode())
	}

	products := make([]Product, 0, len(resp.Items))
	for _, item := range resp.Items {
		p := Product{SKU: item.SKU, Name: item.Name, Price: item.Price}
		for _, attr := range item.CustomAttributes {
			value, _ := attr.Value.(string)
			switch attr.AttributeCode {
			case "url_key":
				p.URL = fmt.Sprintf("%s/%s.html", m.baseURL, value)
			case "short_description", "description":
				if p.Description == "" {
					p.Description = strings.TrimSpace(tagPattern.ReplaceAllString(value, " "))
				}
			}
		}
		products = append(products, p)
		if len(products) == limit {
			break
		}
	}
	return products, nil
}
